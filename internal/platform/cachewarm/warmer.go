package cachewarm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
)

// DefaultDelay is how long the warmer waits after Start before its first
// pass. The delay gives authentication time to settle so the warmer does not
// cache login redirects.
const DefaultDelay = 2 * time.Second

// DefaultRoutes is the dashboard page set warmed on startup.
var DefaultRoutes = []string{
	"/dashboard",
	"/dashboard/overview",
	"/dashboard/patients",
	"/dashboard/patients/new",
	"/dashboard/doctors",
	"/dashboard/doctors/new",
	"/dashboard/appointments",
	"/dashboard/appointments/new",
	"/dashboard/hospitals",
	"/dashboard/hospitals/new",
	"/dashboard/medical-records",
	"/dashboard/medical-records/new",
	"/dashboard/bills",
	"/dashboard/bills/new",
	"/dashboard/workers",
	"/dashboard/workers/new",
	"/dashboard/facilities",
	"/dashboard/facilities/new",
	"/dashboard/capacity",
	"/dashboard/capacity/new",
	"/dashboard/pharmacies",
	"/dashboard/pharmacies/new",
	"/dashboard/chat",
	"/dashboard/kanban",
	"/dashboard/product",
	"/dashboard/healthstake",
}

// Report summarizes one warming pass.
type Report struct {
	Purged int      `json:"purged"`
	Warmed int      `json:"warmed"`
	Failed []string `json:"failed,omitempty"`
}

// Warmer refreshes the route cache from the upstream server. Per-route
// failures are logged and skipped so one slow page never blocks the rest.
type Warmer struct {
	store  *Store
	client *api.Client
	routes []string
	delay  time.Duration
	log    zerolog.Logger

	// OnWarmed, when set, is invoked after each completed pass. The agent
	// uses it to broadcast cache updates to connected clients.
	OnWarmed func(Report)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWarmer builds a warmer over store. A nil or empty routes slice selects
// DefaultRoutes; a non-positive delay selects DefaultDelay.
func NewWarmer(store *Store, client *api.Client, routes []string, delay time.Duration, log zerolog.Logger) *Warmer {
	if len(routes) == 0 {
		routes = DefaultRoutes
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Warmer{
		store:  store,
		client: client,
		routes: routes,
		delay:  delay,
		log:    log.With().Str("component", "cachewarm").Logger(),
	}
}

// Start schedules a warming pass after the configured delay. It returns
// immediately; call Stop to cancel a pending pass.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(w.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		w.Warm(ctx, nil)
	}()
}

// Stop cancels a pending pass and waits for any running one.
func (w *Warmer) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Warm purges cached dashboard routes, then fetches and stores each URL.
// A nil urls slice warms the configured route list. Routes that fail to
// fetch are reported but do not abort the pass.
func (w *Warmer) Warm(ctx context.Context, urls []string) Report {
	if urls == nil {
		urls = w.routes
	}
	var rep Report

	purged, err := w.store.PurgePrefix(ctx, "/dashboard")
	if err != nil {
		w.log.Error().Err(err).Msg("purge dashboard routes")
	}
	rep.Purged = purged

	for i, u := range urls {
		if ctx.Err() != nil {
			rep.Failed = append(rep.Failed, urls[i:]...)
			break
		}
		body, contentType, err := w.client.GetRaw(ctx, u)
		if err != nil {
			w.log.Warn().Err(err).Str("url", u).Msg("warm fetch failed")
			rep.Failed = append(rep.Failed, u)
			continue
		}
		if err := w.store.Set(ctx, u, body, contentType); err != nil {
			w.log.Error().Err(err).Str("url", u).Msg("warm store failed")
			rep.Failed = append(rep.Failed, u)
			continue
		}
		rep.Warmed++
	}

	w.log.Info().
		Int("purged", rep.Purged).
		Int("warmed", rep.Warmed).
		Int("failed", len(rep.Failed)).
		Msg("cache warming pass finished")

	if w.OnWarmed != nil {
		w.OnWarmed(rep)
	}
	return rep
}
