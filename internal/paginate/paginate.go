// Package paginate reveals a list one page at a time. The backing list is
// fetched once on first use and then sliced locally; a guard keeps at most
// one fetch outstanding.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/observability"
)

// State is the synchronizer's fetch state.
type State int

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// Loader fetches the whole backing list.
type Loader[T any] func(ctx context.Context) ([]T, error)

type settings struct {
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option configures a Synchronizer.
type Option func(*settings)

// WithMetrics counts delivered pages.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// Synchronizer is safe for concurrent use. State changes happen under the
// lock; the loader runs outside it.
type Synchronizer[T any] struct {
	load Loader[T]
	size int
	settings

	mu      sync.Mutex
	state   State
	loaded  bool
	backing []T
	visible []T
	cursor  int
	hasMore bool
	closed  bool
}

// New creates a synchronizer revealing pageSize items per page.
func New[T any](load Loader[T], pageSize int, opts ...Option) (*Synchronizer[T], error) {
	if load == nil {
		return nil, errors.New("paginate: loader must not be nil")
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("paginate: page size must be >= 1, got %d", pageSize)
	}
	s := &Synchronizer[T]{
		load:     load,
		size:     pageSize,
		settings: settings{log: zerolog.Nop()},
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s, nil
}

// RequestNextPage reveals the next page. While a fetch is outstanding, once
// the list is exhausted, or after Close it returns ok=false and does
// nothing. A failed load leaves HasMore unchanged; calling again retries.
func (s *Synchronizer[T]) RequestNextPage(ctx context.Context) (page model.Page[T], ok bool, err error) {
	s.mu.Lock()
	if s.closed || s.state == Fetching || !s.hasMore {
		s.mu.Unlock()
		return page, false, nil
	}
	s.state = Fetching
	needLoad := !s.loaded
	s.mu.Unlock()

	ctx, span := observability.Tracer("paginate").Start(ctx, "paginate.RequestNextPage")
	defer span.End()

	var fresh []T
	if needLoad {
		items, err := s.load(ctx)
		if err != nil {
			s.mu.Lock()
			s.state = Idle
			s.mu.Unlock()
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
			s.log.Warn().Err(err).Msg("loading list failed")
			return page, false, fmt.Errorf("paginate: load: %w", err)
		}
		// The list is ours from here on.
		fresh = slices.Clone(items)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	if s.closed {
		return page, false, nil
	}
	if needLoad {
		s.backing = fresh
		s.loaded = true
		s.log.Debug().Int("total", len(fresh)).Msg("list loaded")
	}

	total := len(s.backing)
	start := s.cursor * s.size
	if start >= total {
		s.hasMore = false
		return page, false, nil
	}
	end := min(total, start+s.size)
	items := slices.Clone(s.backing[start:end])

	s.visible = append(s.visible, items...)
	s.hasMore = len(s.visible) < total
	page = model.Page[T]{Index: s.cursor, Start: start, Items: items}
	s.cursor++

	s.metrics.PageDelivered()
	span.SetAttributes(
		attribute.Int("page.index", page.Index),
		attribute.Int("page.items", len(items)),
		attribute.Bool("page.has_more", s.hasMore),
	)
	return page, true, nil
}

// NearEnd is the viewport-proximity trigger. It behaves exactly like
// RequestNextPage.
func (s *Synchronizer[T]) NearEnd(ctx context.Context) (model.Page[T], bool, error) {
	return s.RequestNextPage(ctx)
}

// Pages yields every remaining page in order and stops at the first error,
// at exhaustion, or when another caller holds the fetch.
func (s *Synchronizer[T]) Pages(ctx context.Context) iter.Seq2[model.Page[T], error] {
	return func(yield func(model.Page[T], error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(model.Page[T]{}, err)
				return
			}
			page, ok, err := s.RequestNextPage(ctx)
			if err != nil {
				yield(page, err)
				return
			}
			if !ok {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// Close marks the consumer as gone. A load in flight completes but its
// result is dropped; later requests are no-ops.
func (s *Synchronizer[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Visible returns a copy of every item revealed so far.
func (s *Synchronizer[T]) Visible() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.visible)
}

// HasMore reports whether another page may exist. It is true until the
// list has been loaded and fully revealed.
func (s *Synchronizer[T]) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Loaded reports whether the backing list has been fetched.
func (s *Synchronizer[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Empty reports whether the loaded backing list has no items.
func (s *Synchronizer[T]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && len(s.backing) == 0
}

// Total returns the backing list size, or 0 before it is loaded.
func (s *Synchronizer[T]) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backing)
}

// State returns the current fetch state.
func (s *Synchronizer[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
