// Package discovery announces and finds room servers on the local network
// over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// DefaultService is the mDNS service type room servers register under.
const DefaultService = "_collabtext._tcp"

const domain = "local."

// ErrNotFound is returned by Lookup when no server answered in time.
var ErrNotFound = errors.New("discovery: no room server found")

// Announce registers this host as a room server listening on port. The
// returned func withdraws the registration.
func Announce(service string, port int) (func(), error) {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("%s-%s", "CollabText", host),
		service,
		domain,
		port,
		[]string{"txtv=0", "path=/api"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	log.Printf("mDNS service registered: %s on port %d", service, port)
	return server.Shutdown, nil
}

// Endpoint is where a discovered room server can be reached.
type Endpoint struct {
	Instance string
	Host     string
	Port     int
}

// HTTP returns the server's base http URL.
func (e Endpoint) HTTP() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// WS returns the server's base websocket URL.
func (e Endpoint) WS() string {
	return "ws://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Lookup browses for service and returns the first server that answers
// before ctx is done.
func Lookup(ctx context.Context, service string) (Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Endpoint{}, fmt.Errorf("mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan Endpoint, 1)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			ep, ok := endpointOf(entry)
			if !ok {
				continue
			}
			log.Printf("mDNS discovered room server: %s at %s", ep.Instance, ep.HTTP())
			select {
			case found <- ep:
			default:
			}
		}
	}(entries)

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return Endpoint{}, fmt.Errorf("browse mDNS: %w", err)
	}

	select {
	case ep := <-found:
		return ep, nil
	case <-ctx.Done():
		return Endpoint{}, ErrNotFound
	}
}

func endpointOf(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || entry.Port == 0 {
		return Endpoint{}, false
	}
	ep := Endpoint{Instance: entry.Instance, Port: entry.Port}
	switch {
	case len(entry.AddrIPv4) > 0:
		ep.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		ep.Host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		ep.Host = entry.HostName
	default:
		return Endpoint{}, false
	}
	return ep, true
}
