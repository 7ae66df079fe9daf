package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const deliveryTimeout = 5 * time.Second

// Publisher forwards events to an external bus. Optional.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Dispatcher fans events out asynchronously: it persists the durable row,
// pushes to live sessions and optionally publishes to the bus. Dispatch never
// blocks the caller and delivery errors are only logged.
type Dispatcher struct {
	repo      *Repository
	registry  *Registry
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithPublisher(p Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

func NewDispatcher(repo *Repository, registry *Registry, log *zap.Logger, workers, queueSize int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		repo:     repo,
		registry: registry,
		log:      log,
		now:      time.Now,
		queue:    make(chan Event, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ev)
			}
		}()
	}
	return d
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch enqueues ev. When the queue is full the event is delivered on its
// own goroutine rather than dropped. Events after Close are logged and
// discarded.
func (d *Dispatcher) Dispatch(_ context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped after shutdown", zap.String("type", string(ev.Type)), zap.Int64("user_id", ev.UserID))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ev)
		}()
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.Int64("user_id", ev.UserID),
	}

	n := &Notification{
		Type:       ev.Type,
		ProviderID: ev.ProviderID,
		Title:      ev.Title,
		Body:       ev.Body,
		CreatedAt:  ev.OccurredAt,
	}
	if ev.UserID != 0 {
		uid := ev.UserID
		n.UserID = &uid
	}
	if len(ev.Data) > 0 {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			d.log.Error("notification data encode failed", append(fields, zap.Error(err))...)
		} else {
			n.Data = raw
		}
	}
	if err := d.repo.Create(ctx, n); err != nil {
		d.log.Error("notification persist failed", append(fields, zap.Error(err))...)
	}

	if ev.UserID != 0 {
		payload, err := json.Marshal(n)
		if err == nil {
			d.registry.Push(ev.UserID, payload)
		}
	}

	if d.publisher != nil {
		if err := d.publisher.PublishJSON(ctx, "notification."+string(ev.Type), ev); err != nil {
			d.log.Warn("notification publish failed", append(fields, zap.Error(err))...)
		}
	}
}

// Close stops intake, drains pending events and closes live sessions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.registry.Close()
}
