package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/propflow/realtime-gateway/internal/dispatch"
	"github.com/propflow/realtime-gateway/internal/router"
	"github.com/propflow/realtime-gateway/internal/server/middleware"
	"github.com/propflow/realtime-gateway/pkg/auth"
	"github.com/propflow/realtime-gateway/pkg/config"
	"github.com/propflow/realtime-gateway/pkg/event"
	"github.com/propflow/realtime-gateway/pkg/state"
	"github.com/propflow/realtime-gateway/pkg/state/statemanager"
	"github.com/propflow/realtime-gateway/pkg/transport"
)

// App is the gateway's composition root: it owns the state manager and hands
// it to the router and dispatcher, so several independent instances can
// coexist (nothing is package-global).
type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.Router
	dispatcher   *dispatch.Dispatcher
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	eventRouter := router.New(logger, stateManager)
	dispatcher := dispatch.NewDispatcher(logger, stateManager)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		eventRouter:  eventRouter,
		dispatcher:   dispatcher,
		config:       cfg,
		ctx:          rootCtx,
	}

	verifier := auth.NewVerifier(cfg.Server.Auth.JWTSecret)
	connCycler := func(userID string) {
		oldest, found := stateManager.FindOldestUserConnection(userID)
		if found {
			logger.Info("cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new handshake"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, verifier),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.UserConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.HandleFunc("/health", app.healthHandler)
	mux.HandleFunc("/stats", app.statsHandler)

	app.http = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.HandshakeTimeout,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

// Dispatcher exposes the notification API to in-process business
// collaborators.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("gateway starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.logger.Error("HTTP server failed", slog.Any("error", err))
		return err
	case <-a.ctx.Done():
		return a.Shutdown()
	}
}

// upgradeHandler runs after the middleware chain, so the request already
// carries a verified identity. Registration order is fixed: registry entry
// first, then default rooms; teardown runs the reverse via the close handler.
func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.Identity.UserID == "" {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.Config{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		a.logger,
	)

	// Lifecycle hooks are wired before the registry insertion: the moment
	// RegisterConnection returns, the cycler and Shutdown can close this
	// connection, and that close must already reach DeregisterConnection.
	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("deregistering closed connection", slog.String("connID", id.String()))
		if dErr := a.stateManager.DeregisterConnection(id); dErr != nil {
			connLogger.Error("failed to deregister connection", slog.Any("error", dErr))
		}
	})

	ident := state.Identity{
		UserID:         reqMeta.Identity.UserID,
		OrganizationID: reqMeta.Identity.OrganizationID,
		Role:           reqMeta.Identity.Role,
	}
	stateConn, err := a.stateManager.RegisterConnection(conn, ident)
	if err != nil {
		connLogger.Error("failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	if err := a.joinDefaultRooms(stateConn); err != nil {
		connLogger.Error("failed to join default rooms", slog.Any("error", err))
		// the close handler rolls the registration back
		conn.Close(err)
		return
	}

	connLogger.Info("connection fully established", slog.String("connID", stateConn.ID.String()))
	conn.Run()
	<-conn.Done()
}

func (a *App) joinDefaultRooms(conn *state.Connection) error {
	if err := a.stateManager.Join(conn.ID, event.UserRoom(conn.Identity.UserID)); err != nil {
		return err
	}
	if orgID := conn.Identity.OrganizationID; orgID != "" {
		return a.stateManager.Join(conn.ID, event.OrgRoom(orgID))
	}
	return nil
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) statsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"connections": a.stateManager.ConnectionCount(),
		"rooms":       a.stateManager.RoomCount(),
	})
}

// Shutdown drains the HTTP server, closes every live transport and waits for
// per-connection goroutines to finish their cleanup.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("closing all active connections...")
	for _, conn := range a.stateManager.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	a.wg.Wait()
	a.logger.Info("gateway shut down gracefully")
	return nil
}
