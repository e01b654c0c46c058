package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/config"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/cachewarm"
	"github.com/sehetyar/sync-agent/internal/platform/identity"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
	"github.com/sehetyar/sync-agent/internal/platform/middleware"
	"github.com/sehetyar/sync-agent/internal/platform/websocket"
	"github.com/sehetyar/sync-agent/internal/sync"
)

// Server wires the store, sync engine, identity cache, cache warmer and
// WebSocket hub behind one local HTTP listener.
type Server struct {
	cfg    *config.Config
	log    zerolog.Logger
	echo   *echo.Echo
	store  *localstore.Store
	client *api.Client
	engine *sync.Engine
	idc    *identity.Cache
	routes *cachewarm.Store
	warmer *cachewarm.Warmer
	hub    *websocket.Hub

	cancel      context.CancelFunc
	unsubscribe func()
}

func New(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	store, err := localstore.Open(filepath.Join(cfg.DataDir, "sehetyar.db"), collections.All(), log)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout(), log)

	engine, err := sync.NewEngine(store, client, cfg.PollInterval(), log)
	if err != nil {
		store.Close()
		return nil, err
	}

	idc, err := identity.NewCache(store.DB(), client, cfg.AuthToken, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	engine.Reconciler.UserID = func() string {
		user, err := idc.Current(context.Background())
		if err != nil {
			return ""
		}
		return user.ID
	}

	routeStore, err := cachewarm.NewStore(store.DB())
	if err != nil {
		store.Close()
		return nil, err
	}
	warmer := cachewarm.NewWarmer(routeStore, client, cfg.WarmRouteList(), cfg.WarmDelay(), log)

	hub := websocket.NewHub(log)
	hub.WarmCache = func(urls []string) {
		warmer.Warm(context.Background(), urls)
	}
	warmer.OnWarmed = func(rep cachewarm.Report) {
		data, _ := json.Marshal(rep)
		hub.BroadcastAll(websocket.Event{
			Type:      websocket.EventCacheUpdated,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	}

	srv := &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "server").Logger(),
		store:  store,
		client: client,
		engine: engine,
		idc:    idc,
		routes: routeStore,
		warmer: warmer,
		hub:    hub,
	}

	srv.unsubscribe = store.Subscribe("", func(ch localstore.Change) {
		evt := websocket.Event{
			Type:      websocket.EventDocChanged,
			Topic:     ch.Collection,
			DocID:     ch.DocID,
			Timestamp: time.Now().UTC(),
		}
		if ch.Deleted {
			evt.Data = json.RawMessage(`{"deleted":true}`)
		} else if data, err := json.Marshal(ch.Doc); err == nil {
			evt.Data = data
		}
		hub.Broadcast(ch.Collection, evt)
	})

	engine.Reconciler.OnRun = func(rep sync.RunReport) {
		data, _ := json.Marshal(rep)
		hub.BroadcastAll(websocket.Event{
			Type:      websocket.EventQueueDrained,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	}

	engine.Monitor.OnChange(func(online bool) {
		data, _ := json.Marshal(map[string]bool{"online": online})
		hub.BroadcastAll(websocket.Event{
			Type:      websocket.EventSyncState,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
		if online {
			// Reconnects refresh the identity profile and the page cache.
			go idc.Refresh(context.Background())
			go warmer.Warm(context.Background(), nil)
		}
	})

	srv.echo = srv.buildEcho(log)
	return srv, nil
}

func (s *Server) buildEcho(log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))

	handler := NewHandler(s.engine, s.store.Schemas(), s.idc,
		s.routes, s.warmer, s.client, websocket.NewHandler(s.hub), log)
	handler.RegisterRoutes(e)
	return e
}

// Start launches the background workers and blocks serving HTTP until
// Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// The reconciler registers its connectivity listener, so it starts
	// before the monitor begins polling.
	s.engine.Reconciler.Start(ctx)
	s.engine.Monitor.Start(ctx)
	s.warmer.Start(ctx)

	addr := ":" + s.cfg.Port
	s.log.Info().Str("addr", addr).Msg("starting sync agent")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the workers and the HTTP listener, then closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.warmer.Stop()
	s.engine.Reconciler.Stop()
	s.engine.Monitor.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	err := s.echo.Shutdown(ctx)
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	return err
}
