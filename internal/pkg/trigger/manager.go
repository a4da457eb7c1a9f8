// Package trigger runs reminder generation once a day and delivery of due
// reminders on a fixed interval.
package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/scheduler"
)

const runMarkerTTL = 26 * time.Hour

// Generator creates the reminders due for a day.
type Generator interface {
	Generate(ctx context.Context, actor access.Actor, asOf time.Time, orgID *uint) (*scheduler.Report, error)
}

// Sender delivers email reminders that are due.
type Sender interface {
	SendPending(ctx context.Context, actor access.Actor, asOf time.Time, orgID *uint) (*dispatch.BatchReport, error)
}

// Manager owns the generation and dispatch tickers.
type Manager struct {
	cfg       Config
	generator Generator
	sender    Sender
	redis     *redis.Client
	now       func() time.Time

	generationTicker *time.Ticker
	dispatchTicker   *time.Ticker
	stopCh           chan struct{}
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool

	runMu         sync.Mutex
	lastGenerated time.Time
}

type Option func(*Manager)

// WithRedis shares the daily run marker between app instances.
func WithRedis(c *redis.Client) Option {
	return func(m *Manager) { m.redis = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg Config, generator Generator, sender Sender, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		generator: generator,
		sender:    sender,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches both workers. Calling Start on a running manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		log.Info("[Trigger] Reminder triggers disabled")
		return
	}
	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.generationTicker = time.NewTicker(m.cfg.CheckInterval)
	m.wg.Add(1)
	go m.generationWorker(ctx)

	m.dispatchTicker = time.NewTicker(m.cfg.DispatchInterval)
	m.wg.Add(1)
	go m.dispatchWorker(ctx)

	log.Infof("[Trigger] Started (generation at %02d:00 UTC, dispatch every %s)", m.cfg.GenerationHourUTC, m.cfg.DispatchInterval)
}

// Stop halts the workers and waits for a running batch to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Trigger] Stopping...")
	m.generationTicker.Stop()
	m.dispatchTicker.Stop()
	close(m.stopCh)
	m.cancel()
	m.wg.Wait()
	m.stopCh = nil
	m.running = false
	log.Info("[Trigger] Stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) generationWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.generationTicker.C:
			if _, err := m.RunGenerationOnce(ctx); err != nil {
				log.Errorf("[Trigger] Generation failed: %v", err)
			}
		}
	}
}

func (m *Manager) dispatchWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.dispatchTicker.C:
			if _, err := m.RunDispatchOnce(ctx); err != nil {
				log.Errorf("[Trigger] Dispatch failed: %v", err)
			}
		}
	}
}

// RunGenerationOnce generates today's reminders if the generation hour has
// passed and no instance ran it yet today. It reports whether it ran.
func (m *Manager) RunGenerationOnce(ctx context.Context) (bool, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	now := m.now().UTC()
	day := dateutil.Day(now)
	if now.Hour() < m.cfg.GenerationHourUTC || m.lastGenerated.Equal(day) {
		return false, nil
	}

	marker := "trigger:generate:" + dateutil.Format(day)
	claimed := false
	if m.redis != nil {
		won, err := cache.Claim(ctx, m.redis, marker, runMarkerTTL)
		if err != nil {
			// without the marker another instance may run too; generation is idempotent
			log.Warnf("[Trigger] Could not claim generation run for %s: %v", dateutil.Format(day), err)
		} else if !won {
			log.Debugf("[Trigger] Generation for %s already claimed by another instance", dateutil.Format(day))
			m.lastGenerated = day
			return false, nil
		}
		claimed = won
	}

	report, err := m.generator.Generate(ctx, access.System(), day, nil)
	if err != nil {
		// let the next check of any instance try again
		if claimed {
			if uerr := cache.Unclaim(context.WithoutCancel(ctx), m.redis, marker); uerr != nil {
				log.Warnf("[Trigger] Could not release generation claim for %s: %v", dateutil.Format(day), uerr)
			}
		}
		return false, err
	}
	m.lastGenerated = day
	log.Infof("[Trigger] Generation for %s: %d reminders from %d invoices", dateutil.Format(day), report.RemindersGenerated, report.InvoicesProcessed)
	return true, nil
}

// RunDispatchOnce delivers every email reminder due by now.
func (m *Manager) RunDispatchOnce(ctx context.Context) (*dispatch.BatchReport, error) {
	return m.sender.SendPending(ctx, access.System(), m.now().UTC(), nil)
}
