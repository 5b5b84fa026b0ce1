package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"

	"quadsched/pkg/config"
)

func dialGroup(t *testing.T, url string, size int) []*NATS {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ranks := make([]*NATS, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			ranks[r], errs[r] = DialNATS(ctx, config.NATSConfig{
				URL:         url,
				Subject:     "test." + t.Name(),
				Rank:        r,
				Size:        size,
				JoinTimeout: 5 * time.Second,
			}, nil)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: DialNATS: %v", r, err)
		}
	}
	t.Cleanup(func() {
		for _, rk := range ranks {
			rk.Close()
		}
	})
	return ranks
}

func TestNATSRoundTrip(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	defer s.Shutdown()

	ranks := dialGroup(t, s.ClientURL(), 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 50; i++ {
		if err := ranks[2].SendAsync(ctx, 0, 3000, []byte{byte(i)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := ranks[1].SendAsync(ctx, 0, 4000, []byte("bye")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Pull the tag-4000 message first; the 50 ordered ones must stay queued.
	m, err := ranks[0].Receive(ctx, AnySource, 4000)
	if err != nil {
		t.Fatalf("Receive(4000): %v", err)
	}
	if m.Source != 1 || string(m.Payload) != "bye" {
		t.Errorf("got %+v", m)
	}
	for i := 0; i < 50; i++ {
		m, err := ranks[0].Receive(ctx, 2, AnyTag)
		if err != nil {
			t.Fatalf("Receive #%d: %v", i, err)
		}
		if m.Payload[0] != byte(i) {
			t.Fatalf("out of order: got %d, want %d", m.Payload[0], i)
		}
	}
}

func TestNATSJoinSizeMismatch(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subject := "test.mismatch"
	done := make(chan error, 1)
	go func() {
		ctrl, err := DialNATS(ctx, config.NATSConfig{URL: s.ClientURL(), Subject: subject, Rank: 0, Size: 2, JoinTimeout: 2 * time.Second}, nil)
		if err == nil {
			ctrl.Close()
		}
		done <- err
	}()

	_, err := DialNATS(ctx, config.NATSConfig{URL: s.ClientURL(), Subject: subject, Rank: 1, Size: 3, JoinTimeout: 2 * time.Second}, nil)
	if err == nil {
		t.Fatal("expected join rejection for mismatched group size")
	}
	if ctrlErr := <-done; ctrlErr == nil {
		t.Error("controller should time out without a valid worker")
	}
}

func TestNATSSingleRank(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	defer s.Shutdown()

	ranks := dialGroup(t, s.ClientURL(), 1)
	if ranks[0].Size() != 1 || ranks[0].Rank() != 0 {
		t.Errorf("got rank %d of %d", ranks[0].Rank(), ranks[0].Size())
	}
}
