package trigger

import (
	"sync"
	"time"

	"github.com/fernwall/mainspring/errors"
)

// HandlerRegistry maps handler names to job entry points. Names are
// registered once at startup; the ticker resolves them at fire time so
// trigger rows stay portable across restarts.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register installs a named handler, replacing any previous registration.
func (r *HandlerRegistry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Resolve returns the handler for a name, or nil when unknown.
func (r *HandlerRegistry) Resolve(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// SQLRegistry implements Registry over the SQLite trigger store. Any store
// failure surfaces as ErrSchedulerUnavailable so callers can distinguish an
// unreachable scheduler from an invalid registration.
type SQLRegistry struct {
	store *Store
}

// NewSQLRegistry creates a registry backed by the given store.
func NewSQLRegistry(store *Store) *SQLRegistry {
	return &SQLRegistry{store: store}
}

var _ Registry = (*SQLRegistry)(nil)

func (r *SQLRegistry) RegisterRepeating(key string, shape Shape, handler, payload string, startAt time.Time, endAt *time.Time) error {
	t := &Trigger{
		Key:            key,
		Kind:           shape.Kind,
		Handler:        handler,
		Payload:        payload,
		Interval:       shape.Interval,
		CronSpec:       shape.CronSpec,
		CalendarMonths: shape.CalendarMonths,
		StartAt:        startAt,
		EndAt:          endAt,
		Misfire:        shape.Misfire,
	}
	if err := r.store.Register(t); err != nil {
		if errors.IsInvalidRecurrence(err) {
			return err
		}
		return errors.Wrapf(errors.ErrSchedulerUnavailable, "register %s: %v", key, err)
	}
	return nil
}

func (r *SQLRegistry) RegisterOneShot(key string, handler, payload string, fireAt time.Time) error {
	t := &Trigger{
		Key:     key,
		Kind:    KindOneShot,
		Handler: handler,
		Payload: payload,
		StartAt: fireAt,
		Misfire: MisfireCatchUpOne,
	}
	if err := r.store.Register(t); err != nil {
		return errors.Wrapf(errors.ErrSchedulerUnavailable, "register %s: %v", key, err)
	}
	return nil
}

func (r *SQLRegistry) Cancel(key string) (bool, error) {
	existed, err := r.store.Cancel(key)
	if err != nil {
		return false, errors.Wrapf(errors.ErrSchedulerUnavailable, "cancel %s: %v", key, err)
	}
	return existed, nil
}

func (r *SQLRegistry) NextFireTime(key string) (*time.Time, error) {
	t, err := r.store.Get(key)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSchedulerUnavailable, "next fire time for %s: %v", key, err)
	}
	return t.NextFireAt, nil
}
