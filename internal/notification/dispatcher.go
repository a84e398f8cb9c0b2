package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const deliverTimeout = 5 * time.Second

// Dispatcher moves notification writes off the message send path. Senders
// Enqueue and return; a fixed pool of workers persists and pushes.
type Dispatcher struct {
	svc     *Service
	queue   chan Event
	workers int
	log     zerolog.Logger

	mu      sync.RWMutex
	running bool
}

func NewDispatcher(svc *Service, workers, queueSize int, log zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		svc:     svc,
		queue:   make(chan Event, queueSize),
		workers: workers,
		log:     log.With().Str("component", "notification-dispatcher").Logger(),
	}
}

// Enqueue never blocks. Without running workers, or with a full queue, the
// event is delivered on the caller's goroutine so it is not lost.
func (d *Dispatcher) Enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.running {
		select {
		case d.queue <- ev:
			return
		default:
			d.log.Warn().Int64("user_id", ev.UserID).Msg("notification queue full, delivering inline")
		}
	}
	d.deliver(ev)
}

// Run starts the workers and blocks until ctx is done, then drains what is
// left in the queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev := <-d.queue:
					d.deliver(ev)
				}
			}
		})
	}
	err := g.Wait()

	// Taking the write lock waits out in-flight Enqueue calls; later ones go inline.
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return err
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if _, err := d.svc.Notify(ctx, ev); err != nil {
		d.log.Error().Err(err).Int64("user_id", ev.UserID).Str("title", ev.Title).Msg("notification not delivered")
	}
}

// RunCleanup deletes notifications older than retention once per interval
// until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.DeleteOlderThan(ctx, retention)
			if err != nil {
				s.log.Error().Err(err).Msg("notification cleanup failed")
				continue
			}
			s.log.Info().Int("deleted", n).Dur("retention", retention).Msg("cleaned up old notifications")
		}
	}
}
