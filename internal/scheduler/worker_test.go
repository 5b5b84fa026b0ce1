package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"quadsched/internal/integrand"
	"quadsched/internal/transport"
	"quadsched/pkg/protocol"
)

// workerHarness plays the controller on rank 0 against a real Worker on rank 1.
type workerHarness struct {
	t      *testing.T
	ctrl   *transport.Local
	worker *Worker
	done   chan error
}

func startWorker(t *testing.T, opts ...Option) *workerHarness {
	t.Helper()
	p := mustProblem(t, integrand.Quadratic, 0, 2, 1000)
	ranks := transport.NewLocalGroup(2)
	h := &workerHarness{
		t:      t,
		ctrl:   ranks[0],
		worker: NewWorker(p, ranks[1], opts...),
		done:   make(chan error, 1),
	}
	go func() { h.done <- h.worker.Run(context.Background()) }()
	return h
}

func (h *workerHarness) send(tag int, c protocol.Chunk) {
	h.t.Helper()
	payload, err := protocol.EncodeChunk(c)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.ctrl.SendAsync(context.Background(), 1, tag, payload); err != nil {
		h.t.Fatal(err)
	}
}

func (h *workerHarness) expect(tag int) float64 {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := h.ctrl.Receive(ctx, 1, transport.AnyTag)
	if err != nil {
		h.t.Fatalf("waiting for %s: %v", protocol.TagName(tag), err)
	}
	if m.Tag != tag {
		h.t.Fatalf("got %s, want %s", protocol.TagName(m.Tag), protocol.TagName(tag))
	}
	v, err := protocol.DecodeValue(m.Payload)
	if err != nil {
		h.t.Fatal(err)
	}
	return v
}

func (h *workerHarness) expectSilence() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if m, err := h.ctrl.Receive(ctx, 1, transport.AnyTag); err == nil {
		h.t.Fatalf("unexpected %s from worker", protocol.TagName(m.Tag))
	}
}

func TestWorkerPartialResult(t *testing.T) {
	h := startWorker(t)
	c := protocol.Chunk{StartIndex: 100, StopIndex: 110}
	h.send(protocol.TagWorkAvailable, c)

	got := h.expect(protocol.TagPartialResult)
	want := PartialSum(h.worker.problem, c)
	if got != want {
		t.Errorf("partial = %v, want %v", got, want)
	}
}

func TestWorkerExitsAfterDepthQuits(t *testing.T) {
	h := startWorker(t)

	h.send(protocol.TagQuit, protocol.Chunk{})
	h.send(protocol.TagQuit, protocol.Chunk{})
	h.expectSilence()

	// Work may still arrive between quits on the remaining slot.
	h.send(protocol.TagWorkAvailable, protocol.Chunk{StartIndex: 0, StopIndex: 10})
	h.expect(protocol.TagPartialResult)

	h.send(protocol.TagQuit, protocol.Chunk{})
	if v := h.expect(protocol.TagWorkerExiting); v != 0 {
		t.Errorf("exit payload = %v, want 0", v)
	}

	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not return after its last quit")
	}
	if h.worker.Quits() != DefaultDepth || h.worker.Chunks() != 1 {
		t.Errorf("quits %d chunks %d", h.worker.Quits(), h.worker.Chunks())
	}
}

func TestWorkerDepthOne(t *testing.T) {
	h := startWorker(t, WithDepth(1))
	h.send(protocol.TagQuit, protocol.Chunk{})
	h.expect(protocol.TagWorkerExiting)
	if err := <-h.done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestWorkerUnexpectedTag(t *testing.T) {
	h := startWorker(t)
	h.send(protocol.TagPartialResult, protocol.Chunk{})
	select {
	case err := <-h.done:
		if !errors.Is(err, protocol.ErrUnexpectedTag) {
			t.Errorf("err = %v, want ErrUnexpectedTag", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker kept running after an unknown tag")
	}
}

func TestPartialSumSplits(t *testing.T) {
	p := mustProblem(t, integrand.Sine, 0, 1, 1000)
	whole := PartialSum(p, protocol.Chunk{StartIndex: 0, StopIndex: 1000})
	split := PartialSum(p, protocol.Chunk{StartIndex: 0, StopIndex: 437}) +
		PartialSum(p, protocol.Chunk{StartIndex: 437, StopIndex: 1000})
	if !nearlyEqual(whole, split, 1e-12) {
		t.Errorf("whole %v != split %v", whole, split)
	}
	if got := PartialSum(p, protocol.Chunk{StartIndex: 5, StopIndex: 5}); got != 0 {
		t.Errorf("empty chunk sum = %v", got)
	}
}
