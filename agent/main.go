package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"collabtext/internal/config"
	"collabtext/internal/conn"
	"collabtext/internal/discovery"
	"collabtext/internal/engine"
	"collabtext/internal/rooms"
	"collabtext/internal/view"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	roomRef := flag.String("room", "", "room id or share link to join")
	create := flag.Bool("create", false, "create a new room and join it")
	discover := flag.Bool("discover", false, "find the room server on the local network over mDNS")
	apiURL := flag.String("api", "", "room API base URL (overrides config)")
	wsURL := flag.String("ws", "", "realtime base URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *discover {
		cfg.Agent.Discover = true
	}
	if *apiURL != "" {
		cfg.Agent.APIBaseURL = *apiURL
	}
	if *wsURL != "" {
		cfg.Agent.WSBaseURL = *wsURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if !*create && *roomRef == "" {
		fmt.Fprintln(os.Stderr, "usage: agent -room <id or link> | -create")
		os.Exit(2)
	}

	// The terminal belongs to the editor from here on.
	logFile, err := os.OpenFile(cfg.Agent.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Agent.Discover {
		lookupCtx, cancel := context.WithTimeout(ctx, cfg.Agent.DiscoverTimeout.Std())
		ep, err := discovery.Lookup(lookupCtx, discovery.DefaultService)
		cancel()
		if err != nil {
			fail("Could not find a room server: %v", err)
		}
		cfg.Agent.APIBaseURL = ep.HTTP() + "/api"
		cfg.Agent.WSBaseURL = ep.WS()
	}

	client := rooms.NewClient(cfg.Agent.APIBaseURL)
	room, err := joinRoom(ctx, client, *create, *roomRef)
	if err != nil {
		fail("%v", err)
	}
	log.Printf("Joining room %s", room.ID)

	mgr := conn.NewManager(rooms.WebsocketURL(cfg.Agent.WSBaseURL, room.ID), conn.Options{
		ReconnectDelay: cfg.Agent.ReconnectDelay.Std(),
	})

	screen, err := tcell.NewScreen()
	if err != nil {
		fail("Could not open the terminal: %v", err)
	}
	term := view.New(screen, view.Options{
		RoomID:    room.ID,
		ShareLink: rooms.ShareLink(strings.TrimSuffix(cfg.Agent.APIBaseURL, "/api"), room.ID),
		Language:  cfg.Agent.Language,
		Suggester: client,
	})
	eng := engine.New(mgr, engine.Options{RoomID: room.ID, View: term})
	eng.Load(room.Code)
	term.Attach(eng)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := eng.Run(ctx, mgr.Events()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Engine stopped: %v", err)
		}
	}()
	if err := mgr.Start(ctx); err != nil {
		fail("Could not connect: %v", err)
	}

	if err := term.Run(ctx); err != nil {
		log.Printf("Editor stopped: %v", err)
	}
	cancel()
	// Give the manager a moment to send its close frame.
	time.Sleep(100 * time.Millisecond)
	log.Println("CollabText agent stopped.")
}

// joinRoom creates a room or fetches the one named by ref.
func joinRoom(ctx context.Context, client *rooms.Client, create bool, ref string) (rooms.Room, error) {
	if create {
		room, err := client.Create(ctx)
		if err != nil {
			return rooms.Room{}, fmt.Errorf("Failed to create room. Please try again: %w", err)
		}
		return room, nil
	}
	id, err := rooms.ParseRoomRef(ref)
	if err != nil {
		return rooms.Room{}, err
	}
	room, err := client.Get(ctx, id)
	if errors.Is(err, rooms.ErrRoomNotFound) {
		return rooms.Room{}, errors.New("Room not found. Please check the room ID.")
	}
	if err != nil {
		return rooms.Room{}, fmt.Errorf("Failed to join room. Please try again: %w", err)
	}
	return room, nil
}

// fail reports an error the user must act on and exits.
func fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Print(msg)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
