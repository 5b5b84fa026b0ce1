package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quadsched/internal/transport"
	"quadsched/pkg/config"
	"quadsched/pkg/protocol"
)

// ErrWorkerStalled is returned when a receive timeout is configured and no
// worker answered in time.
var ErrWorkerStalled = errors.New("no worker message within receive timeout")

// Controller runs on rank 0. It keeps every worker's pipeline full, sums the
// partial results and drains the workers once the domain is exhausted.
type Controller struct {
	problem *config.Problem
	tr      transport.Transport
	opts    options
	log     *slog.Logger

	gen       *WorkGenerator
	slots     *SlotTable
	sum       float64
	exitAcks  int
	perWorker []int64
}

func NewController(p *config.Problem, tr transport.Transport, opts ...Option) *Controller {
	o := buildOptions(opts)
	return &Controller{
		problem:   p,
		tr:        tr,
		opts:      o,
		log:       o.logger.With("role", "controller", "rank", tr.Rank()),
		gen:       NewWorkGenerator(p.Points, p.Granularity()),
		slots:     NewSlotTable(tr.Size(), o.depth),
		perWorker: make([]int64, tr.Size()),
	}
}

// Run drives the computation until every worker has acknowledged its exit.
// Elapsed time covers the initial fill through the last acknowledgment.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	if c.tr.Rank() != 0 {
		return Result{}, fmt.Errorf("controller must run on rank 0, not %d", c.tr.Rank())
	}
	workers := c.tr.Size() - 1
	runID := uuid.NewString()
	c.log.Info("starting integration",
		"run_id", runID,
		"function", c.problem.Function,
		"points", c.problem.Points,
		"granularity", c.problem.Granularity(),
		"workers", workers,
		"depth", c.opts.depth)

	start := time.Now()

	if err := c.fill(ctx, workers); err != nil {
		return Result{}, err
	}

	for c.exitAcks < workers {
		m, err := c.receive(ctx)
		if err != nil {
			return Result{}, err
		}

		switch m.Tag {
		case protocol.TagWorkerExiting:
			c.exitAcks++
			c.opts.metrics.ExitAcks.Inc()
			c.log.Debug("worker exited", "worker", m.Source, "exited", c.exitAcks, "of", workers)

		case protocol.TagPartialResult:
			v, err := protocol.DecodeValue(m.Payload)
			if err != nil {
				return Result{}, fmt.Errorf("partial result from worker %d: %w", m.Source, err)
			}
			c.sum += v
			c.opts.metrics.PartialResults.Inc()
			c.opts.metrics.ChunksInFlight.Dec()
			c.log.Debug("partial result", "worker", m.Source, "value", v, "sum", c.sum)

			if err := c.dispatch(ctx, m.Source); err != nil {
				return Result{}, err
			}

		default:
			return Result{}, fmt.Errorf("%w: %s from rank %d", protocol.ErrUnexpectedTag, protocol.TagName(m.Tag), m.Source)
		}
	}

	res := c.result(runID, time.Since(start))
	c.log.Info("integration finished",
		"run_id", runID,
		"value", res.Value,
		"elapsed", res.Elapsed,
		"chunks", res.Chunks)
	return res, nil
}

// fill primes every worker's depth slots, round-robin across workers. Slots
// left over once the domain runs out get their quit straight away, so each
// worker still sees exactly depth quits overall.
func (c *Controller) fill(ctx context.Context, workers int) error {
	for round := 0; round < c.opts.depth; round++ {
		for w := 1; w <= workers; w++ {
			if err := c.dispatch(ctx, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch sends the next chunk, or a quit once the domain is exhausted,
// into worker w's next slot.
func (c *Controller) dispatch(ctx context.Context, w int) error {
	slot := c.slots.NextSlot(w)

	if c.gen.IsExhausted() {
		payload, err := protocol.EncodeChunk(c.slots.Get(w, slot))
		if err != nil {
			return err
		}
		if err := c.tr.SendAsync(ctx, w, protocol.TagQuit, payload); err != nil {
			return fmt.Errorf("send quit to worker %d slot %d: %w", w, slot, err)
		}
		c.opts.metrics.QuitsSent.Inc()
		c.log.Debug("no work left, sent quit", "worker", w, "slot", slot)
		return nil
	}

	chunk := c.gen.NextChunk()
	c.slots.Set(w, slot, chunk)
	payload, err := protocol.EncodeChunk(chunk)
	if err != nil {
		return err
	}
	if err := c.tr.SendAsync(ctx, w, protocol.TagWorkAvailable, payload); err != nil {
		return fmt.Errorf("send chunk %s to worker %d slot %d: %w", chunk, w, slot, err)
	}
	c.perWorker[w]++
	c.opts.metrics.ChunksDispatched.Inc()
	c.opts.metrics.ChunksInFlight.Inc()
	c.log.Debug("sent work", "worker", w, "slot", slot, "chunk", chunk)
	return nil
}

func (c *Controller) receive(ctx context.Context) (transport.Message, error) {
	if c.opts.receiveTimeout <= 0 {
		return c.tr.Receive(ctx, transport.AnySource, transport.AnyTag)
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.receiveTimeout)
	defer cancel()
	m, err := c.tr.Receive(rctx, transport.AnySource, transport.AnyTag)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return m, fmt.Errorf("%w (%s, %d of %d workers exited)",
			ErrWorkerStalled, c.opts.receiveTimeout, c.exitAcks, c.tr.Size()-1)
	}
	return m, err
}
