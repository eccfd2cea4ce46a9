package callgraph

import (
	"context"
	"time"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// Sweeper periodically prunes conversations whose hangup webhook never arrived.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   *logging.Logger
	onPrune  func(callIDs []string)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Interval time.Duration
	MaxIdle  time.Duration
	Logger   *logging.Logger
	// OnPrune is called after each sweep that removed at least one conversation.
	OnPrune func(callIDs []string)
}

// NewSweeper returns a sweeper for registry. Zero durations fall back to a
// 5 minute interval and a 2 hour idle limit.
func NewSweeper(registry *Registry, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 2 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Sweeper{
		registry: registry,
		interval: cfg.Interval,
		maxIdle:  cfg.MaxIdle,
		logger:   cfg.Logger,
		onPrune:  cfg.OnPrune,
	}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce prunes idle conversations immediately.
func (s *Sweeper) SweepOnce() []string {
	pruned := s.registry.PruneIdle(s.maxIdle)
	if len(pruned) == 0 {
		return nil
	}
	s.logger.Info("pruned idle conversations", "count", len(pruned), "max_idle", s.maxIdle.String())
	if s.onPrune != nil {
		s.onPrune(pruned)
	}
	return pruned
}
