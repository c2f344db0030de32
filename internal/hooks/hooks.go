package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"media-manager/internal/logging"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// Event is a media file lifecycle event.
type Event int

const (
	EventCreate Event = iota
	EventUpdate
	EventRemove
	EventRecreate
)

func (e Event) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventRemove:
		return "remove"
	case EventRecreate:
		return "recreate"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// AllEvents lists every event.
var AllEvents = []Event{EventCreate, EventUpdate, EventRemove, EventRecreate}

// Any registers a handler for every MIME category.
const Any = "*"

// CreateArgs describes a file that was just indexed.
type CreateArgs struct {
	MediaID  int64
	Path     string // absolute
	MimeType string
}

// UpdateArgs describes a file whose index row changed, possibly by a rename.
type UpdateArgs struct {
	MediaID  int64
	OldPath  string
	NewPath  string
	MimeType string
}

// RemoveArgs describes a file that left the index.
type RemoveArgs struct {
	MediaID  int64
	Path     string
	MimeType string
}

// RecreateArgs is a caller request to rebuild derived data for a file.
type RecreateArgs struct {
	Path     string
	MimeType string
	Force    bool
}

// Handler reacts to lifecycle events. Embed BaseHandler to implement only
// the events of interest.
type Handler interface {
	OnCreate(ctx context.Context, args CreateArgs) error
	OnUpdate(ctx context.Context, args UpdateArgs) error
	OnRemove(ctx context.Context, args RemoveArgs) error
	OnRecreate(ctx context.Context, args RecreateArgs) error
}

// BaseHandler implements Handler with no-ops.
type BaseHandler struct{}

func (BaseHandler) OnCreate(context.Context, CreateArgs) error     { return nil }
func (BaseHandler) OnUpdate(context.Context, UpdateArgs) error     { return nil }
func (BaseHandler) OnRemove(context.Context, RemoveArgs) error     { return nil }
func (BaseHandler) OnRecreate(context.Context, RecreateArgs) error { return nil }

type key struct {
	category string
	event    Event
}

// Registry maps (MIME category, event) to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key][]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key][]Handler)}
}

// Register adds h for category ("image", "video", ... or Any) and the given
// events, or every event when none are given.
func (r *Registry) Register(category string, h Handler, events ...Event) {
	if len(events) == 0 {
		events = AllEvents
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		k := key{category, ev}
		r.handlers[k] = append(r.handlers[k], h)
	}
}

// lookup returns category-specific handlers followed by wildcard ones.
func (r *Registry) lookup(mimeType string, ev Event) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	category := mediatypes.Category(mimeType)
	out := append([]Handler(nil), r.handlers[key{category, ev}]...)
	if category != Any {
		out = append(out, r.handlers[key{Any, ev}]...)
	}
	return out
}

func (r *Registry) dispatch(ctx context.Context, mimeType string, ev Event, call func(Handler) error) error {
	var errs []error
	for _, h := range r.lookup(mimeType, ev) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := call(h); err != nil {
			metrics.HookInvocationsTotal.WithLabelValues(ev.String(), "error").Inc()
			logging.Debug("%s hook %T failed for %s: %v", ev, h, mimeType, err)
			errs = append(errs, fmt.Errorf("%s hook: %w", ev, err))
			continue
		}
		metrics.HookInvocationsTotal.WithLabelValues(ev.String(), "success").Inc()
	}
	return errors.Join(errs...)
}

// FireCreate runs every create handler for args.MimeType. All handlers run;
// their errors are joined.
func (r *Registry) FireCreate(ctx context.Context, args CreateArgs) error {
	return r.dispatch(ctx, args.MimeType, EventCreate, func(h Handler) error {
		return h.OnCreate(ctx, args)
	})
}

// FireUpdate runs every update handler for args.MimeType.
func (r *Registry) FireUpdate(ctx context.Context, args UpdateArgs) error {
	return r.dispatch(ctx, args.MimeType, EventUpdate, func(h Handler) error {
		return h.OnUpdate(ctx, args)
	})
}

// FireRemove runs every remove handler for args.MimeType.
func (r *Registry) FireRemove(ctx context.Context, args RemoveArgs) error {
	return r.dispatch(ctx, args.MimeType, EventRemove, func(h Handler) error {
		return h.OnRemove(ctx, args)
	})
}

// FireRecreate runs every recreate handler for args.MimeType.
func (r *Registry) FireRecreate(ctx context.Context, args RecreateArgs) error {
	return r.dispatch(ctx, args.MimeType, EventRecreate, func(h Handler) error {
		return h.OnRecreate(ctx, args)
	})
}
