package broker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
)

// TickStream subscribes to the bridge's websocket tick feed and keeps the
// quote cache warm. Losing the stream is not fatal: the engine falls back to
// REST ticks and bar closes, and the stream keeps reconnecting behind the
// scenes.
type TickStream struct {
	url          string
	symbolSuffix string
	cache        *pricing.SnapshotCache
	log          *logging.Logger
}

// NewTickStream creates a stream feeding the given cache. url may be empty,
// in which case Run returns immediately.
func NewTickStream(url, symbolSuffix string, cache *pricing.SnapshotCache, log *logging.Logger) *TickStream {
	return &TickStream{
		url:          url,
		symbolSuffix: symbolSuffix,
		cache:        cache,
		log:          log.WithComponent("tick-stream"),
	}
}

// Run connects and pumps ticks into the cache until ctx is cancelled,
// reconnecting with exponential backoff on any failure.
func (s *TickStream) Run(ctx context.Context) {
	if s.url == "" {
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return
		}
		err := s.pump(ctx, policy)
		if ctx.Err() != nil {
			return
		}
		wait := policy.NextBackOff()
		s.log.Warn("Tick stream disconnected", "error", err.Error(), "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *TickStream) pump(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	policy.Reset()
	s.log.Info("Tick stream connected", "url", s.url)

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick Tick
		if err := json.Unmarshal(message, &tick); err != nil {
			s.log.Debug("Dropping malformed tick", "payload", string(message))
			continue
		}
		if tick.Symbol == "" || tick.Bid <= 0 || tick.Ask <= 0 {
			continue
		}
		symbol := strings.TrimSuffix(tick.Symbol, s.symbolSuffix)
		s.cache.Put(symbol, tick.Bid, tick.Ask)
	}
}
