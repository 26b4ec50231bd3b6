package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/metrics"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading"
)

const (
	MinBackoff = 20 * time.Second
	MaxBackoff = 70 * time.Second
)

var ErrTerminal = errors.New("terminal stream error")

// Session is one connection attempt. It returns only when the session ends.
type Session interface {
	Run(ctx context.Context) error
}

type Supervisor struct {
	session Session
	logger  *zap.Logger
	intN    func(n int) int
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Supervisor)

// WithRand replaces the source of the reconnect jitter.
func WithRand(intN func(n int) int) Option {
	return func(s *Supervisor) { s.intN = intN }
}

// WithSleep replaces the wait before reconnecting.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

func New(session Session, logger *zap.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		session: session,
		logger:  logger.With(zap.String("component", "supervisor")),
		intN:    rand.Intn,
		sleep:   trading.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run restarts the session forever. It returns an error wrapping ErrTerminal
// on 403 or 409, or ctx.Err() once ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.session.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := "network"
		var status interface{ StatusCode() int }
		if errors.As(err, &status) {
			switch code := status.StatusCode(); code {
			case http.StatusForbidden:
				s.logger.Error("Invalid license", zap.Error(err))
				return fmt.Errorf("%w: invalid license (%d)", ErrTerminal, code)
			case http.StatusConflict:
				s.logger.Error("Conflict, another session holds this license", zap.Error(err))
				return fmt.Errorf("%w: conflict (%d)", ErrTerminal, code)
			default:
				reason = "status"
				s.logger.Error("Stream rejected", zap.Int("status", code), zap.Error(err))
			}
		} else {
			s.logger.Error("Stream disconnected", zap.Error(err))
		}

		metrics.Reconnects.WithLabelValues(reason).Inc()
		delay := s.Backoff()
		s.logger.Info("Reconnecting", zap.Duration("delay", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Backoff picks a whole-second delay in [MinBackoff, MaxBackoff).
func (s *Supervisor) Backoff() time.Duration {
	span := int((MaxBackoff - MinBackoff) / time.Second)
	return MinBackoff + time.Duration(s.intN(span))*time.Second
}
