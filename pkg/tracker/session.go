package tracker

import (
	"context"
	"sync"
	"time"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

// Session is one device's position watch for one order. Samples are
// coalesced: the first one is written at once, later ones at most once per
// throttle window, and only the newest sample of a window is written.
type Session struct {
	orderID string
	t       *Tracker
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	latest    models.Coordinates
	dirty     bool
	lastWrite time.Time

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

func newSession(t *Tracker, orderID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		orderID: orderID,
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *Session) OrderID() string {
	return s.orderID
}

// Push records a device sample. It never blocks on the store.
func (s *Session) Push(at models.Coordinates) error {
	if !at.Valid() {
		return errs.Validation("coordinates out of range")
	}
	select {
	case <-s.ctx.Done():
		return &errs.TrackingUnavailableError{Reason: "tracking stopped"}
	default:
	}

	s.mu.Lock()
	s.latest = at
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Stop releases the session and clears the persisted position. Safe to call
// more than once and from any goroutine.
func (s *Session) Stop() {
	s.halt(true)
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) halt(clear bool) {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.t.forget(s)

		if !clear {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := s.t.orders.ClearDriverPosition(ctx, s.orderID); err != nil {
			s.t.log.Warning("failed to clear driver position",
				logger.String("order_id", s.orderID),
				logger.Error(err),
			)
		}
		s.t.log.Info("tracking stopped", logger.String("order_id", s.orderID))
	})
}

func (s *Session) loop() {
	defer close(s.done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			if fire != nil {
				continue
			}
			wait := s.t.throttle - time.Since(s.lastWritten())
			if wait <= 0 {
				s.flush()
				continue
			}
			timer = time.NewTimer(wait)
			fire = timer.C
		case <-fire:
			fire = nil
			s.flush()
		}
	}
}

func (s *Session) lastWritten() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite
}

// flush writes the newest pending sample. Write errors are logged only.
func (s *Session) flush() {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	at := s.latest
	s.dirty = false
	s.lastWrite = time.Now()
	s.mu.Unlock()

	if err := s.t.orders.UpdateDriverPosition(s.ctx, s.orderID, at.Lat, at.Lng); err != nil && s.ctx.Err() == nil {
		s.t.log.Warning("failed to persist driver position",
			logger.String("order_id", s.orderID),
			logger.Error(err),
		)
	}
}
