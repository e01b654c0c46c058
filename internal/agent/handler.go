// Package agent exposes the sync subsystem to the dashboard UI over a local
// HTTP surface. Reads and writes go through the network-first sync paths;
// dashboard pages are proxied with route-cache fallback so the UI keeps
// working while the upstream server is down.
package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/cachewarm"
	"github.com/sehetyar/sync-agent/internal/platform/identity"
	"github.com/sehetyar/sync-agent/internal/platform/middleware"
	"github.com/sehetyar/sync-agent/internal/platform/schema"
	"github.com/sehetyar/sync-agent/internal/platform/websocket"
	"github.com/sehetyar/sync-agent/internal/sync"
	"github.com/sehetyar/sync-agent/pkg/pagination"
)

type Handler struct {
	engine   *sync.Engine
	schemas  map[string]*schema.Schema
	identity *identity.Cache
	routes   *cachewarm.Store
	warmer   *cachewarm.Warmer
	client   *api.Client
	ws       *websocket.Handler
	log      zerolog.Logger
}

func NewHandler(engine *sync.Engine, schemas map[string]*schema.Schema, idcache *identity.Cache,
	routes *cachewarm.Store, warmer *cachewarm.Warmer, client *api.Client,
	ws *websocket.Handler, log zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		schemas:  schemas,
		identity: idcache,
		routes:   routes,
		warmer:   warmer,
		client:   client,
		ws:       ws,
		log:      log.With().Str("component", "agent").Logger(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ws", h.ws.HandleConnect)

	e.GET("/api/sync/status", h.SyncStatus)
	e.POST("/api/sync/run", h.SyncRun)
	e.POST("/api/sync/retry", h.SyncRetry)
	e.GET("/api/user/me", h.CurrentUser)

	e.GET("/api/:collection", h.List)
	e.POST("/api/:collection", h.Create)
	e.PUT("/api/:collection/:id", h.Update)
	e.DELETE("/api/:collection/:id", h.Delete)

	e.GET("/dashboard", h.Dashboard)
	e.GET("/dashboard/*", h.Dashboard)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"online": h.engine.Monitor.Online(),
	})
}

// collection resolves the :collection param against the known schemas.
func (h *Handler) collection(c echo.Context) (string, error) {
	name := c.Param("collection")
	if _, ok := h.schemas[name]; !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown collection "+name)
	}
	return name, nil
}

func (h *Handler) List(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return err
	}

	res, err := h.engine.Reader.Fetch(c.Request().Context(), collection, "/api/"+collection, c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pg := pagination.FromContext(c)
	body := map[string]interface{}{
		"success":     true,
		"isFromCache": res.FromCache,
	}
	if res.FromCache {
		// Cached result sets are paginated locally.
		body["data"] = pagination.Slice(res.Data, pg)
		body["pagination"] = pagination.NewMeta(len(res.Data), pg)
		if res.ServerError != "" {
			body["error"] = res.ServerError
		}
	} else {
		body["data"] = res.Data
		body["pagination"] = pagination.NewMeta(res.Total, pg)
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) Create(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return err
	}

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.engine.Writer.Submit(c.Request().Context(), sync.SubmitRequest{
		Collection: collection,
		Method:     http.MethodPost,
		Endpoint:   "/api/" + collection,
		Payload:    payload,
		QueuedBy:   h.currentUserID(c.Request().Context()),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return writeResult(c, http.StatusCreated, res)
}

func (h *Handler) Update(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return err
	}
	id := c.Param("id")

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.engine.Writer.Submit(c.Request().Context(), sync.SubmitRequest{
		Collection: collection,
		Method:     http.MethodPut,
		Endpoint:   "/api/" + collection + "/" + id,
		ID:         id,
		Payload:    payload,
		QueuedBy:   h.currentUserID(c.Request().Context()),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return writeResult(c, http.StatusOK, res)
}

func (h *Handler) Delete(c echo.Context) error {
	collection, err := h.collection(c)
	if err != nil {
		return err
	}
	id := c.Param("id")

	res, err := h.engine.Writer.Submit(c.Request().Context(), sync.SubmitRequest{
		Collection: collection,
		Method:     http.MethodDelete,
		Endpoint:   "/api/" + collection + "/" + id,
		ID:         id,
		QueuedBy:   h.currentUserID(c.Request().Context()),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return writeResult(c, http.StatusOK, res)
}

// writeResult maps a SubmitResult onto the response contract
// {success, data?, error?, queued?}.
func writeResult(c echo.Context, okStatus int, res *sync.SubmitResult) error {
	if !res.Success {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   res.Error,
		})
	}
	body := map[string]interface{}{"success": true}
	if res.Doc != nil {
		body["data"] = res.Doc
	}
	status := okStatus
	if res.Queued {
		body["queued"] = true
		status = http.StatusAccepted
	}
	return c.JSON(status, body)
}

func (h *Handler) SyncStatus(c echo.Context) error {
	counts, err := h.engine.Queue.Counts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"online":      h.engine.Monitor.Online(),
		"collections": counts,
	})
}

func (h *Handler) SyncRun(c echo.Context) error {
	report, err := h.engine.Reconciler.Run(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

func (h *Handler) SyncRetry(c echo.Context) error {
	report, err := h.engine.Reconciler.Retry(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

func (h *Handler) CurrentUser(c echo.Context) error {
	user, err := h.identity.Current(c.Request().Context())
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentity) {
			return echo.NewHTTPError(http.StatusUnauthorized, "no identity available")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    user,
	})
}

// Dashboard proxies pages network-first, refreshing the route cache on
// success and serving the cached copy when the upstream is unreachable.
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	path := c.Request().URL.Path

	body, contentType, err := h.client.GetRaw(ctx, path)
	if err == nil {
		if storeErr := h.routes.Set(ctx, path, body, contentType); storeErr != nil {
			h.log.Warn().Err(storeErr).Str("path", path).Msg("route cache store failed")
		}
		return c.Blob(http.StatusOK, contentType, body)
	}

	entry, cacheErr := h.routes.Get(ctx, path)
	if cacheErr != nil {
		if errors.Is(cacheErr, cachewarm.ErrNotFound) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "page not cached and server unreachable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, cacheErr.Error())
	}
	c.Response().Header().Set(middleware.FromCacheHeader, "true")
	return c.Blob(http.StatusOK, entry.ContentType, entry.Body)
}

// currentUserID tags queued writes with the active user so replay stays
// scoped per identity. Missing identity degrades to an unscoped queue.
func (h *Handler) currentUserID(ctx context.Context) string {
	user, err := h.identity.Current(ctx)
	if err != nil {
		return ""
	}
	return user.ID
}
