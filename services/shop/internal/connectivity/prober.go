package connectivity

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultProbePath     = "/healthz"
	defaultProbeInterval = 5 * time.Second
	probeTimeout         = 3 * time.Second
)

// Pinger reaches the API without authentication.
type Pinger interface {
	Ping(ctx context.Context, path string) error
}

type ProberConfig struct {
	Pinger   Pinger
	Path     string
	Interval time.Duration
	Initial  State
	Logger   *slog.Logger
}

// Prober polls the API and derives connectivity from transport errors.
type Prober struct {
	pinger   Pinger
	path     string
	interval time.Duration
	logger   *slog.Logger
	b        *broadcaster
}

func NewProber(cfg ProberConfig) *Prober {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultProbePath
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		pinger:   cfg.Pinger,
		path:     path,
		interval: interval,
		logger:   logger,
		b:        newBroadcaster(cfg.Initial),
	}
}

func (p *Prober) Online() bool {
	return p.b.current() == Online
}

func (p *Prober) Subscribe() (<-chan State, func()) {
	return p.b.subscribe()
}

// Check probes once and records the result.
func (p *Prober) Check(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	state := Online
	if err := p.pinger.Ping(ctx, p.path); err != nil {
		state = Offline
		p.logger.Debug("probe failed", "path", p.path, "err", err)
	}
	if p.b.set(state) {
		p.logger.Info("connectivity changed", "state", state.String())
	}
	return state
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
