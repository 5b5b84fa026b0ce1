// Package session turns a run configuration into running ranks: it builds
// the transport, decides each rank's role and returns the controller's
// result.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"quadsched/internal/scheduler"
	"quadsched/internal/transport"
	"quadsched/pkg/config"
)

// Run executes the problem with the transport selected in cfg. In local
// mode every rank runs in this process; in NATS mode this process is the
// single rank cfg.NATS.Rank. The result is nil on worker ranks.
func Run(ctx context.Context, cfg *config.Config, p *config.Problem, logger *slog.Logger, opts ...scheduler.Option) (*scheduler.Result, error) {
	opts = append([]scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithReceiveTimeout(cfg.ReceiveTimeout),
	}, opts...)

	switch cfg.Transport {
	case config.TransportLocal:
		res, err := RunLocal(ctx, p, cfg.NP, opts...)
		if err != nil {
			return nil, err
		}
		return &res, nil

	case config.TransportNATS:
		tr, err := transport.DialNATS(ctx, cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		defer tr.Close()
		return RunRank(ctx, p, tr, opts...)

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// RunRank plays the role of tr's rank: controller on rank 0, worker
// elsewhere.
func RunRank(ctx context.Context, p *config.Problem, tr transport.Transport, opts ...scheduler.Option) (*scheduler.Result, error) {
	if tr.Rank() == 0 {
		res, err := scheduler.NewController(p, tr, opts...).Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("controller: %w", err)
		}
		return &res, nil
	}
	if err := scheduler.NewWorker(p, tr, opts...).Run(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// RunLocal runs np ranks as goroutines over an in-process transport, the
// way `mpirun -n np` would run them as processes. If any rank fails the
// others are cancelled.
func RunLocal(ctx context.Context, p *config.Problem, np int, opts ...scheduler.Option) (scheduler.Result, error) {
	if np < 1 {
		return scheduler.Result{}, fmt.Errorf("%w: np must be >= 1, got %d", transport.ErrInvalidRank, np)
	}
	ranks := transport.NewLocalGroup(np)
	g, gctx := errgroup.WithContext(ctx)

	for _, tr := range ranks[1:] {
		tr := tr
		g.Go(func() error {
			defer tr.Close()
			return scheduler.NewWorker(p, tr, opts...).Run(gctx)
		})
	}

	var res scheduler.Result
	g.Go(func() error {
		defer ranks[0].Close()
		r, err := scheduler.NewController(p, ranks[0], opts...).Run(gctx)
		if err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		res = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return scheduler.Result{}, err
	}
	return res, nil
}
