package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"collabtext/internal/config"
	"collabtext/internal/discovery"
	"collabtext/internal/relay"
	"collabtext/internal/store"
)

type api struct {
	store store.Store
	hub   *relay.Hub
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.store.Create(r.Context())
	if err != nil {
		log.Printf("Error creating room: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}
	log.Printf("Created room %s", room.ID)
	writeJSON(w, http.StatusCreated, room)
}

func (a *api) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.store.Get(r.Context(), mux.Vars(r)["room_id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		log.Printf("Error loading room: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *api) deleteRoom(w http.ResponseWriter, r *http.Request) {
	err := a.store.Delete(r.Context(), mux.Vars(r)["room_id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		log.Printf("Error deleting room: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "CollabText"})
}

type suggestRequest struct {
	Prefix   string `json:"prefix"`
	Language string `json:"language"`
}

// autocomplete has no suggestion source of its own and always answers with
// an empty list.
func (a *api) autocomplete(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid autocomplete request")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": {}})
}

func (a *api) serveWs(w http.ResponseWriter, r *http.Request) {
	a.hub.ServeWs(w, r, mux.Vars(r)["room_id"])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// newRouter wires the room API and the realtime endpoint.
func newRouter(a *api) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/ws/{room_id}", a.serveWs)

	r.HandleFunc("/api/rooms", a.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/", a.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{room_id}", a.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{room_id}", a.deleteRoom).Methods(http.MethodDelete)
	r.HandleFunc("/api/autocomplete", a.autocomplete).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(c.Handler(r))
}

func openStore(ctx context.Context, cfg config.Server) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to PostgreSQL successfully.")
		return st, nil
	}
	st, err := store.OpenBolt(cfg.BoltPath)
	if err != nil {
		return nil, err
	}
	log.Printf("Using embedded store at %s", cfg.BoltPath)
	return st, nil
}

func openBus(ctx context.Context, cfg config.Server) (relay.Bus, error) {
	if cfg.RedisAddr == "" {
		return relay.NewLocalBus(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	log.Println("Connected to Redis successfully.")
	return relay.NewRedisBus(rdb), nil
}

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	announce := flag.Bool("announce", false, "announce the server on the local network over mDNS")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *announce {
		cfg.Server.Announce = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Server)
	if err != nil {
		log.Fatalf("Unable to open room store: %v", err)
	}
	defer st.Close()

	bus, err := openBus(ctx, cfg.Server)
	if err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}

	hub := relay.NewHub(st, bus, nil)
	go hub.Run(ctx)

	if cfg.Server.Announce {
		_, portStr, _ := net.SplitHostPort(cfg.Server.Addr)
		port, _ := strconv.Atoi(portStr)
		shutdown, err := discovery.Announce(cfg.Server.ServiceName, port)
		if err != nil {
			log.Printf("mDNS announce failed: %v", err)
		} else {
			defer shutdown()
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handlers.LoggingHandler(os.Stdout, newRouter(&api{store: st, hub: hub})),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("CollabText room server starting on %s...", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Println("CollabText room server stopped.")
}
