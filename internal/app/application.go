package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"parlor/internal/api"
	"parlor/internal/assistant"
	"parlor/internal/auth"
	"parlor/internal/config"
	"parlor/internal/room"
	"parlor/internal/router"
	"parlor/internal/session"
	"parlor/internal/store"
	"parlor/internal/typing"
	"parlor/internal/websocket"
	"parlor/pkg/interfaces"
)

// Application wires all components together. Initialization follows
// dependency order: store, then the shared coordination structures,
// then the per-request surfaces.
type Application struct {
	cfg            *config.Config
	log            zerolog.Logger
	store          *store.Store
	registry       *websocket.Registry
	rooms          *room.Manager
	httpServer     *http.Server
	cancelSessions context.CancelFunc
}

// NewApplication builds an application from validated configuration.
func NewApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	messageStore, err := store.Open(cfg.Database.Path, cfg.Database.WriteTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry := websocket.NewRegistry(log)
	rooms := room.NewManager(cfg.Chat.Channels)
	typingCoordinator := typing.NewCoordinator(rooms, cfg.Chat.TypingTimeout, log)

	var generator interfaces.Generator
	if cfg.Assistant.APIKey != "" {
		generator = assistant.NewOpenAIGenerator(cfg.Assistant.APIKey, cfg.Assistant.BaseURL, cfg.Assistant.Model)
	} else {
		log.Warn().Msg("assistant API key not set, replies fall back to canned text")
	}
	bridge := assistant.NewBridge(generator, messageStore, cfg.Assistant.Username, cfg.Assistant.Timeout, log)

	messageRouter := router.NewRouter(messageStore, registry, rooms, bridge, log)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	apiServer := api.NewServer(messageStore, verifier, registry, log)

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	wsHandler := session.NewHandler(sessionCtx, verifier, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, session.Deps{
		Registry:    registry,
		Rooms:       rooms,
		Typing:      typingCoordinator,
		Router:      messageRouter,
		Store:       messageStore,
		DefaultRoom: cfg.Chat.DefaultRoom,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		cfg:            cfg,
		log:            log.With().Str("component", "app").Logger(),
		store:          messageStore,
		registry:       registry,
		rooms:          rooms,
		httpServer:     httpServer,
		cancelSessions: cancelSessions,
	}, nil
}

// Start begins serving. It returns once the listener is up or fails.
func (a *Application) Start(ctx context.Context) error {
	a.log.Info().Str("addr", a.httpServer.Addr).Msg("starting server")

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		a.log.Info().Msg("server started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down: stop accepting, unwind sessions,
// then close the store so in-flight writes land first.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info().Msg("shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}

	a.cancelSessions()
	for _, conn := range a.registry.Connections() {
		_ = conn.Close()
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}
