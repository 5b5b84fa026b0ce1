package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quadsched/internal/transport"
	"quadsched/pkg/config"
	"quadsched/pkg/protocol"
)

// controllerRank is the only rank workers talk to.
const controllerRank = 0

// Worker sums the chunks it is sent and reports each partial result back to
// the controller. It leaves after one quit per pipeline slot.
type Worker struct {
	problem *config.Problem
	tr      transport.Transport
	opts    options
	log     *slog.Logger

	quits  int
	chunks int64
}

func NewWorker(p *config.Problem, tr transport.Transport, opts ...Option) *Worker {
	o := buildOptions(opts)
	return &Worker{
		problem: p,
		tr:      tr,
		opts:    o,
		log:     o.logger.With("role", "worker", "rank", tr.Rank()),
	}
}

// Run serves the controller until the last quit, then sends the
// worker-exiting acknowledgment.
func (w *Worker) Run(ctx context.Context) error {
	for {
		m, err := w.tr.Receive(ctx, controllerRank, transport.AnyTag)
		if err != nil {
			return fmt.Errorf("worker %d receive: %w", w.tr.Rank(), err)
		}

		switch m.Tag {
		case protocol.TagWorkAvailable:
			chunk, err := protocol.DecodeChunk(m.Payload)
			if err != nil {
				return fmt.Errorf("worker %d: %w", w.tr.Rank(), err)
			}

			started := time.Now()
			sum := PartialSum(w.problem, chunk)
			w.opts.metrics.ChunkSeconds.Observe(time.Since(started).Seconds())
			w.chunks++

			payload, err := protocol.EncodeValue(sum)
			if err != nil {
				return err
			}
			if err := w.tr.SendAsync(ctx, controllerRank, protocol.TagPartialResult, payload); err != nil {
				return fmt.Errorf("worker %d send partial result: %w", w.tr.Rank(), err)
			}
			w.log.Debug("chunk done", "chunk", chunk, "sum", sum)

		case protocol.TagQuit:
			w.quits++
			w.log.Debug("quit received", "quits", w.quits, "depth", w.opts.depth)
			if w.quits < w.opts.depth {
				continue
			}
			payload, err := protocol.EncodeValue(0)
			if err != nil {
				return err
			}
			if err := w.tr.SendAsync(ctx, controllerRank, protocol.TagWorkerExiting, payload); err != nil {
				return fmt.Errorf("worker %d send exit: %w", w.tr.Rank(), err)
			}
			w.log.Debug("worker exiting", "chunks", w.chunks)
			return nil

		default:
			return fmt.Errorf("worker %d: %w: %s", w.tr.Rank(), protocol.ErrUnexpectedTag, protocol.TagName(m.Tag))
		}
	}
}

// Quits is the number of quit signals received so far.
func (w *Worker) Quits() int { return w.quits }

// Chunks is the number of chunks summed so far.
func (w *Worker) Chunks() int64 { return w.chunks }

// PartialSum applies the midpoint rule to the indices of c:
// sum over i of f(a + (i+0.5)*y, intensity) * y, with y = (b-a)/N.
func PartialSum(p *config.Problem, c protocol.Chunk) float64 {
	y := p.Step()
	var sum float64
	for i := c.StartIndex; i < c.StopIndex; i++ {
		x := p.Lower + (float64(i)+0.5)*y
		sum += p.F(x, p.Intensity) * y
	}
	return sum
}
