package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExportFunc produces the current full binary image of the engine.
type ExportFunc func(ctx context.Context) ([]byte, error)

// Scheduler drives snapshot persistence: save-on-write requests coalesce
// into at most one pending save behind the single in-flight one, a fixed
// interval timer saves regardless of write activity, and Flush gives
// shutdown paths a bounded way to wait for the final save. Save failures
// are logged and swallowed; an applied in-memory write is never undone by
// a persistence hiccup.
type Scheduler struct {
	export   ExportFunc
	target   Target
	interval time.Duration
	log      *zap.Logger

	requests chan struct{}
	flushes  chan chan error
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler returns a stopped scheduler. A nil target disables
// persistence entirely; Request and Flush become no-ops.
func NewScheduler(export ExportFunc, target Target, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		export:   export,
		target:   target,
		interval: interval,
		log:      log,
		requests: make(chan struct{}, 1),
		flushes:  make(chan chan error),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background save loop.
func (s *Scheduler) Start() {
	if s.target == nil {
		close(s.done)
		return
	}
	go s.run()
}

// Request asks for a save after a write. It never blocks: if a save is
// already pending the request coalesces into it.
func (s *Scheduler) Request() {
	if s.target == nil {
		return
	}
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Flush performs one synchronous save, waiting at most until ctx is done.
// Used on shutdown; a deadline hit is reported, not fatal.
func (s *Scheduler) Flush(ctx context.Context) error {
	if s.target == nil {
		return nil
	}
	reply := make(chan error, 1)
	select {
	case s.flushes <- reply:
	case <-s.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the save loop. Pending coalesced requests are dropped; callers
// wanting durability call Flush first.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.requests:
			s.save()
		case <-ticker.C:
			// Autosave fires whether or not anything changed.
			s.save()
		case reply := <-s.flushes:
			reply <- s.save()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) save() error {
	ctx := context.Background()
	data, err := s.export(ctx)
	if err != nil {
		s.log.Error("snapshot export failed", zap.Error(err))
		return err
	}
	if err := s.target.Save(ctx, data); err != nil {
		s.log.Error("snapshot save failed", zap.String("target", s.target.Name()), zap.Error(err))
		return err
	}
	s.log.Debug("snapshot saved", zap.String("target", s.target.Name()), zap.Int("bytes", len(data)))
	return nil
}
