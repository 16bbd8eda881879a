package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/metacoder87/investment-matrix/internal/domain/port"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

type StreamerOptions struct {
	PingInterval     time.Duration
	PongTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Backoff          Backoff
}

func DefaultStreamerOptions() StreamerOptions {
	return StreamerOptions{
		PingInterval:     20 * time.Second,
		PongTimeout:      20 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadLimit:        1 << 20,
		Backoff:          DefaultBackoff(),
	}
}

// Streamer keeps one websocket session to an exchange alive and hands every
// parsed trade to a publisher. It reconnects until its context is cancelled.
type Streamer struct {
	strategy Strategy
	opts     StreamerOptions
	dialer   *websocket.Dialer
	log      *slog.Logger

	state     atomic.Int32
	published atomic.Int64
	dropped   atomic.Int64

	malformedLog rate.Sometimes
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewStreamer(strategy Strategy, opts StreamerOptions, log *slog.Logger) *Streamer {
	return &Streamer{
		strategy: strategy,
		opts:     opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		log:          log.With("exchange", strategy.Name()),
		malformedLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
		sleep:        sleepContext,
	}
}

func (s *Streamer) Name() string {
	return s.strategy.Name()
}

func (s *Streamer) State() State {
	return State(s.state.Load())
}

func (s *Streamer) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.log.Debug("stream state changed", "state", st.String())
	}
}

// Stats returns the number of trades handed to the publisher and the number
// of frames dropped as malformed.
func (s *Streamer) Stats() (published, dropped int64) {
	return s.published.Load(), s.dropped.Load()
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (s *Streamer) Run(ctx context.Context, pub port.TradePublisher) error {
	backoff := s.opts.Backoff
	backoff.Reset()
	lastPolicy := PolicyNone

	s.log.Info("starting exchange stream", "url", s.strategy.URL())
	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateDisconnected)
			return err
		}

		streamed, err := s.session(ctx, pub, &backoff)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			s.log.Info("exchange stream stopped")
			return ctx.Err()
		}
		if streamed {
			lastPolicy = PolicyNone
		}

		wait := backoff.Next(err)

		var perr *PolicyError
		switch {
		case errors.As(err, &perr) && perr.Kind != lastPolicy:
			lastPolicy = perr.Kind
			s.log.Error("exchange refused connection", "status", perr.StatusCode, "policy", perr.Kind.String(), "retry_in", wait)
		case errors.As(err, &perr):
			s.log.Debug("exchange still refusing connection", "status", perr.StatusCode, "retry_in", wait)
		default:
			lastPolicy = PolicyNone
			s.log.Warn("exchange connection lost, reconnecting", "error", err, "retry_in", wait)
		}

		if err := s.sleep(ctx, wait); err != nil {
			s.log.Info("exchange stream stopped")
			return err
		}
	}
}

// session runs one connection from dial to failure. streamed reports whether
// any frame was received.
func (s *Streamer) session(ctx context.Context, pub port.TradePublisher, backoff *Backoff) (streamed bool, err error) {
	s.setState(StateConnecting)

	conn, resp, err := s.dialer.DialContext(ctx, s.strategy.URL(), nil)
	if err != nil {
		return false, classifyDialError(s.strategy.Name(), resp, err)
	}
	defer conn.Close()

	// Unblocks ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	msg, err := s.strategy.SubscriptionMessage()
	if err != nil {
		return false, fmt.Errorf("build subscription: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s.setState(StateSubscribed)

	if s.opts.ReadLimit > 0 {
		conn.SetReadLimit(s.opts.ReadLimit)
	}
	idle := s.opts.PingInterval + s.opts.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return streamed, fmt.Errorf("read: %w", err)
		}
		receivedAt := time.Now().UTC()
		_ = conn.SetReadDeadline(receivedAt.Add(idle))

		if !streamed {
			streamed = true
			backoff.Reset()
			s.setState(StateStreaming)
			s.log.Info("exchange stream live")
		}

		events, err := s.strategy.ParseMessage(raw, receivedAt)
		if err != nil {
			s.dropped.Add(1)
			s.malformedLog.Do(func() {
				s.log.Warn("dropping malformed frame data", "error", err, "kept", len(events), "dropped_total", s.dropped.Load())
			})
		}

		for _, ev := range events {
			if err := pub.Publish(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return streamed, ctx.Err()
				}
				s.log.Warn("publish failed, trade not delivered", "symbol", ev.Symbol.Dash(), "error", err)
				continue
			}
			s.published.Add(1)
		}
	}
}

func (s *Streamer) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	if s.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
