package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"quadsched/pkg/config"
)

// joinRetryInterval is how long a worker waits between unanswered join
// requests while the controller is still starting.
const joinRetryInterval = 250 * time.Millisecond

// NATS is a rank backed by a NATS connection. Each rank owns the subject
// "<prefix>.rank.<n>"; a single publisher connection per rank keeps
// per-pair ordering.
type NATS struct {
	nc     *nats.Conn
	inbox  *nats.Subscription
	join   *nats.Subscription
	rank   int
	size   int
	prefix string
	log    *slog.Logger

	mu      sync.Mutex // serializes Receive; guards pending
	pending queue
}

type envelope struct {
	Source  int    `msgpack:"src"`
	Tag     int    `msgpack:"tag"`
	Payload []byte `msgpack:"p"`
}

type joinRequest struct {
	Rank int `msgpack:"rank"`
	Size int `msgpack:"size"`
}

type joinReply struct {
	OK     bool   `msgpack:"ok"`
	Reason string `msgpack:"reason,omitempty"`
}

// DialNATS connects to the server, subscribes to this rank's inbox and waits
// until the group has formed: workers block until the controller has
// acknowledged them, the controller blocks until size-1 workers joined.
// Core NATS drops messages sent to subjects nobody subscribes to, so no
// scheduling message may be sent before DialNATS returns.
func DialNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger, opts ...nats.Option) (*NATS, error) {
	if cfg.Size < 1 || cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrInvalidRank, cfg.Rank, cfg.Size)
	}
	if logger == nil {
		logger = slog.Default()
	}

	name := fmt.Sprintf("quadsched-rank-%d-%s", cfg.Rank, uuid.NewString()[:8])
	nc, err := nats.Connect(cfg.URL, append([]nats.Option{nats.Name(name)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	t := &NATS{
		nc:     nc,
		rank:   cfg.Rank,
		size:   cfg.Size,
		prefix: cfg.Subject,
		log:    logger.With("rank", cfg.Rank),
	}

	t.inbox, err = nc.SubscribeSync(t.rankSubject(cfg.Rank))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to rank inbox: %w", err)
	}
	// A controller may push P chunks per worker before reading anything;
	// never let the client library drop them as a slow consumer.
	if err := t.inbox.SetPendingLimits(-1, -1); err != nil {
		nc.Close()
		return nil, fmt.Errorf("set pending limits: %w", err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	t.log.Debug("nats rank connected", "url", cfg.URL, "subject", t.rankSubject(cfg.Rank))

	joinCtx := ctx
	if cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, cfg.JoinTimeout)
		defer cancel()
	}
	if cfg.Rank == 0 {
		err = t.acceptJoins(joinCtx)
	} else {
		err = t.requestJoin(joinCtx)
	}
	if err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *NATS) rankSubject(rank int) string {
	return fmt.Sprintf("%s.rank.%d", t.prefix, rank)
}

func (t *NATS) joinSubject() string {
	return t.prefix + ".join"
}

// acceptJoins answers join requests until every worker rank has been seen.
// The responder stays subscribed until Close so that a worker whose first
// reply was lost can still be acknowledged on retry.
func (t *NATS) acceptJoins(ctx context.Context) error {
	joined := make(chan int, t.size)
	var err error
	t.join, err = t.nc.Subscribe(t.joinSubject(), func(msg *nats.Msg) {
		var req joinRequest
		reply := joinReply{OK: true}
		if err := msgpack.Unmarshal(msg.Data, &req); err != nil {
			reply = joinReply{Reason: fmt.Sprintf("bad join request: %v", err)}
		} else if req.Size != t.size {
			reply = joinReply{Reason: fmt.Sprintf("group size mismatch: controller has %d, rank %d has %d", t.size, req.Rank, req.Size)}
		} else if req.Rank < 1 || req.Rank >= t.size {
			reply = joinReply{Reason: fmt.Sprintf("rank %d outside [1, %d)", req.Rank, t.size)}
		}
		data, err := msgpack.Marshal(&reply)
		if err != nil {
			t.log.Warn("failed to encode join reply", "rank", req.Rank, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			t.log.Warn("failed to answer join request", "error", err)
		}
		if reply.OK {
			select {
			case joined <- req.Rank:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to join subject: %w", err)
	}
	if err := t.nc.Flush(); err != nil {
		return fmt.Errorf("flush join subscription: %w", err)
	}

	seen := make(map[int]bool, t.size)
	for len(seen) < t.size-1 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for workers (%d of %d joined): %w", len(seen), t.size-1, ctx.Err())
		case r := <-joined:
			if !seen[r] {
				seen[r] = true
				t.log.Info("worker joined", "worker", r, "joined", len(seen), "expected", t.size-1)
			}
		}
	}
	return nil
}

// requestJoin retries the join request until the controller answers.
func (t *NATS) requestJoin(ctx context.Context) error {
	data, err := msgpack.Marshal(&joinRequest{Rank: t.rank, Size: t.size})
	if err != nil {
		return fmt.Errorf("encode join request: %w", err)
	}
	for {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, err := t.nc.RequestWithContext(reqCtx, t.joinSubject(), data)
		cancel()
		if err == nil {
			var reply joinReply
			if err := msgpack.Unmarshal(msg.Data, &reply); err != nil {
				return fmt.Errorf("decode join reply: %w", err)
			}
			if !reply.OK {
				return fmt.Errorf("controller rejected join: %s", reply.Reason)
			}
			t.log.Info("joined group", "size", t.size)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for controller: %w", ctx.Err())
		}
		t.log.Debug("controller not ready, retrying join", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for controller: %w", ctx.Err())
		case <-time.After(joinRetryInterval):
		}
	}
}

func (t *NATS) Rank() int { return t.rank }
func (t *NATS) Size() int { return t.size }

// SendAsync publishes without waiting for the server round trip. The
// envelope is encoded into a new buffer, so payload may be reused at once.
func (t *NATS) SendAsync(ctx context.Context, dest, tag int, payload []byte) error {
	if dest < 0 || dest >= t.size {
		return fmt.Errorf("%w: %d (group size %d)", ErrInvalidRank, dest, t.size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(&envelope{Source: t.rank, Tag: tag, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.nc.Publish(t.rankSubject(dest), data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return fmt.Errorf("publish to rank %d: %w", dest, err)
	}
	return nil
}

// Receive returns the oldest message matching (source, tag), pulling from
// the subscription and parking non-matching messages as needed.
func (t *NATS) Receive(ctx context.Context, source, tag int) (Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.pending.take(source, tag); ok {
		return m, nil
	}
	for {
		msg, err := t.inbox.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return Message{}, ErrClosed
			}
			return Message{}, err
		}
		var env envelope
		if err := msgpack.Unmarshal(msg.Data, &env); err != nil {
			t.log.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
			continue
		}
		m := Message{Source: env.Source, Tag: env.Tag, Payload: env.Payload}
		if matches(m, source, tag) {
			return m, nil
		}
		t.pending = append(t.pending, m)
	}
}

// Close flushes outstanding publishes and closes the connection.
func (t *NATS) Close() error {
	if t.nc.IsClosed() {
		return nil
	}
	err := t.nc.FlushTimeout(5 * time.Second)
	t.nc.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush on close: %w", err)
	}
	return nil
}
