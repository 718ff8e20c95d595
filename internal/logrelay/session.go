package logrelay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tvship/internal/logging"
	"tvship/internal/services"
	"tvship/internal/services/webos"
)

// errStalled marks a connection that stopped producing within the read
// timeout. Stalls are recycled the same way dropped connections are.
var errStalled = errors.New("log stream stalled")

// Session is one live log stream. Lines delivers filtered events until the
// session ends; Err reports the terminal cause once Lines is closed.
type Session struct {
	id     string
	alias  string
	filter Filter
	cursor uint64
	lines  chan webos.LogEvent
	cancel context.CancelFunc
	logger *slog.Logger
	source LogSource

	backoffBase time.Duration
	backoffMax  time.Duration
	readTimeout time.Duration

	done    chan struct{}
	endOnce sync.Once
	err     error
}

// ID returns the session identifier used in log correlation.
func (s *Session) ID() string { return s.id }

// Lines is the delivery channel. It is closed when the session ends.
func (s *Session) Lines() <-chan webos.LogEvent { return s.lines }

// Err returns the terminal cause after Lines closes. It is nil or a
// context error when the session was cancelled rather than broken.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Close stops the session. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	backoff := s.backoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	delay := backoff

	for {
		reader, err := s.source.Tail(ctx, webos.LogQuery{Cursor: s.cursor, App: s.filter.App})
		if err != nil {
			if ctx.Err() != nil {
				s.finish(ctx.Err())
				return
			}
			if !services.Transient(err) {
				s.finish(err)
				return
			}
			s.logger.Warn("log stream connect failed, retrying",
				logging.Duration("backoff", delay),
				logging.Error(err),
			)
			if !s.sleep(ctx, delay) {
				s.finish(ctx.Err())
				return
			}
			delay = nextBackoff(delay, s.backoffMax)
			continue
		}

		delay = backoff
		connCtx, connCancel := context.WithCancel(ctx)
		streamErr := s.consume(connCtx, reader)
		connCancel()
		_ = reader.Close()

		if ctx.Err() != nil {
			s.finish(ctx.Err())
			return
		}
		// Anything that ends an established stream is a drop; only
		// connect-time failures can be terminal.
		s.logger.Debug("log stream dropped, reconnecting",
			logging.Uint64("cursor", s.cursor),
			logging.Error(streamErr),
		)
		if !s.sleep(ctx, delay) {
			s.finish(ctx.Err())
			return
		}
		delay = nextBackoff(delay, s.backoffMax)
	}
}

// consume drains one connection, advancing the cursor and delivering
// filtered events. Returns the reason the connection ended.
func (s *Session) consume(ctx context.Context, reader EventReader) error {
	events := make(chan webos.LogEvent)
	errs := make(chan error, 1)
	go func() {
		for {
			event, err := reader.Next()
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	var stall *time.Timer
	var stallC <-chan time.Time
	if s.readTimeout > 0 {
		stall = time.NewTimer(s.readTimeout)
		defer stall.Stop()
		stallC = stall.C
	}

	for {
		select {
		case event := <-events:
			if stall != nil {
				if !stall.Stop() {
					<-stall.C
				}
				stall.Reset(s.readTimeout)
			}
			if event.Seq <= s.cursor {
				continue
			}
			s.cursor = event.Seq
			if !s.filter.match(event) {
				continue
			}
			select {
			case s.lines <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-errs:
			return err
		case <-stallC:
			return errStalled
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) finish(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.lines)
		close(s.done)
	})
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if max > 0 && next > max {
		return max
	}
	return next
}
