// Package conn owns the client's single persistent connection to a room's
// realtime endpoint.
//
// # State machine
//
//	disconnected ──Start──▶ connecting ──handshake ok──▶ open
//	                            ▲   │                      │
//	                 delay fires│   │dial error    read/write error, close
//	                            │   ▼                      │
//	                      reconnect-pending ◀──────────────┘
//
// Every failure, clean or not, leads to reconnect-pending and a reconnect
// after a fixed delay (3s by default). There is no retry limit and no manual
// disconnect; the only way out is cancelling the context given to Start,
// which models process shutdown.
//
// The reconnect is a transition scheduled through a Scheduler, so tests can
// drive the clock and check the exact moment a retry happens.
//
// # Events
//
// The Manager publishes lifecycle and message events on one channel, in order.
// A consumer reading Events sequentially sees a Disconnected for every
// Connected before the next Connected, and never sees a message from a
// connection after its Disconnected.
//
// # Delivery
//
// Send is fire-and-forget. Frames sent while the connection is not open are
// dropped, not queued.
package conn
