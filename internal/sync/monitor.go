// Package sync implements the offline-first data path of the agent: the
// network-first Reader, the queueing Writer, the durable replay queue, the
// reconciliation runner that drains it, and the connectivity monitor that
// drives the offline/online transitions.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
)

// DefaultPollInterval is how often the monitor probes the remote health
// endpoint.
const DefaultPollInterval = 30 * time.Second

// Monitor tracks remote reachability. It polls the health endpoint on a
// ticker and also accepts immediate offline flips from the Writer, which
// learns about lost connectivity faster than any poll.
type Monitor struct {
	client   *api.Client
	interval time.Duration
	log      zerolog.Logger

	mu        stdsync.Mutex
	online    bool
	listeners []func(online bool)

	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewMonitor builds a monitor. The agent starts optimistic: the state is
// online until a probe or a failed write says otherwise.
func NewMonitor(client *api.Client, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		client:   client,
		interval: interval,
		log:      log.With().Str("component", "monitor").Logger(),
		online:   true,
	}
}

// Online reports the last known connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a listener invoked on every offline/online transition.
// Listeners must be registered before Start.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start launches the polling loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// MarkOffline flips the state to offline immediately. Called by the data
// path when a request fails with a connectivity error.
func (m *Monitor) MarkOffline() {
	m.setOnline(false)
}

// Probe runs one health check now and returns the resulting state.
func (m *Monitor) Probe(ctx context.Context) bool {
	m.probe(ctx)
	return m.Online()
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.client.Health(ctx)
	m.setOnline(err == nil || !api.IsUnreachable(err))
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Info().Bool("online", online).Msg("connectivity changed")
	for _, fn := range listeners {
		fn(online)
	}
}
