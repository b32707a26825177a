package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/repository"
	"stockroom/internal/schema"
	"stockroom/internal/seed"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxIDAttempts bounds how often a colliding generated id is retried
const maxIDAttempts = 5

// ProductService is the boundary used by UI collaborators
type ProductService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, input schema.ProductInput) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, input schema.ProductInput) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (string, error)
	Invalidate()
	Subscribe(observer Observer) (unsubscribe func())
	Version() uint64
}

type cacheState int

const (
	stateUnloaded cacheState = iota
	stateLoaded
	stateStale
)

func (s cacheState) String() string {
	switch s {
	case stateLoaded:
		return "loaded"
	case stateStale:
		return "stale"
	default:
		return "unloaded"
	}
}

// EventKind names the change that produced an Event
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventUpdated     EventKind = "updated"
	EventDeleted     EventKind = "deleted"
	EventInvalidated EventKind = "invalidated"
)

// Event tells observers that cached collections are out of date
type Event struct {
	Kind      EventKind `json:"kind"`
	ProductID string    `json:"productId,omitempty"`
	Version   uint64    `json:"version"`
}

// Observer is called once per committed change, in commit order.
// Observers may read from the store. They must not mutate it synchronously:
// the nested change would wait for the delivery that is calling it.
type Observer func(Event)

// Option configures a ProductStore
type Option func(*ProductStore)

// WithSeed replaces the collection used when nothing has been persisted
func WithSeed(fn func() []domain.Product) Option {
	return func(s *ProductStore) { s.seed = fn }
}

// WithClock replaces the source of creation timestamps
func WithClock(now func() time.Time) Option {
	return func(s *ProductStore) { s.now = now }
}

// WithIDGenerator replaces the product id generator
func WithIDGenerator(newID func() string) Option {
	return func(s *ProductStore) { s.newID = newID }
}

// ProductStore owns the in-memory product collection for one session and
// keeps it consistent with the persisted slot.
//
// The cache moves through unloaded -> loaded -> stale -> loaded. A read in
// the unloaded state loads the slot (falling back to the seed set without
// persisting it); a successful mutation saves the recomputed collection and
// marks the cache stale so the next read adopts it. A failed save leaves the
// cache untouched. Mutations are applied one at a time against the latest
// committed collection.
type ProductStore struct {
	repo   repository.CollectionRepository
	logger *zap.Logger
	seed   func() []domain.Product
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	state   cacheState
	cache   []domain.Product
	pending []domain.Product
	version uint64

	// events are dispatched strictly by version; notified is the last
	// version whose observers have returned
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObsID uint64
}

// NewProductStore creates a store over the given repository
func NewProductStore(repo repository.CollectionRepository, logger *zap.Logger, opts ...Option) *ProductStore {
	s := &ProductStore{
		repo:      repo,
		logger:    logger,
		seed:      seed.Products,
		now:       time.Now,
		newID:     uuid.NewString,
		observers: make(map[uint64]Observer),
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListProducts returns a snapshot of the collection, newest first
func (s *ProductStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		return nil, err
	}
	return cloneProducts(current), nil
}

// SearchProducts returns the products whose name, category or description
// contain query, ignoring case. An empty query matches everything.
func (s *ProductStore) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return FilterProducts(products, query), nil
}

// GetProduct returns a single product by id
func (s *ProductStore) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	idx := indexOf(current, id)
	if idx < 0 {
		return domain.Product{}, &domain.NotFoundError{ID: id}
	}
	return current[idx], nil
}

// CreateProduct validates input, assigns an id and creation time, and
// prepends the new record to the collection.
func (s *ProductStore) CreateProduct(ctx context.Context, input schema.ProductInput) (domain.Product, error) {
	fields, err := schema.Validate(input)
	if err != nil {
		s.logger.Debug("Product creation rejected", zap.Error(err))
		return domain.Product{}, err
	}

	created, err := s.mutate(ctx, EventCreated, func(current []domain.Product) ([]domain.Product, domain.Product, error) {
		id, err := s.uniqueID(current)
		if err != nil {
			return nil, domain.Product{}, err
		}

		product := domain.Product{ID: id, CreatedAt: s.now().UTC()}.WithFields(fields)

		next := make([]domain.Product, 0, len(current)+1)
		next = append(next, product)
		next = append(next, current...)
		return next, product, nil
	})
	if err != nil {
		s.logger.Error("Product creation failed", zap.Error(err))
		return domain.Product{}, err
	}

	s.logger.Info("Product created", zap.String("product_id", created.ID))
	return created, nil
}

// UpdateProduct replaces the editable fields of an existing product.
// The id and creation time are kept.
func (s *ProductStore) UpdateProduct(ctx context.Context, id string, input schema.ProductInput) (domain.Product, error) {
	fields, err := schema.Validate(input)
	if err != nil {
		s.logger.Debug("Product update rejected", zap.String("product_id", id), zap.Error(err))
		return domain.Product{}, err
	}

	updated, err := s.mutate(ctx, EventUpdated, func(current []domain.Product) ([]domain.Product, domain.Product, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, domain.Product{}, &domain.NotFoundError{ID: id}
		}

		next := cloneProducts(current)
		next[idx] = next[idx].WithFields(fields)
		return next, next[idx], nil
	})
	if err != nil {
		s.logger.Warn("Product update failed", zap.String("product_id", id), zap.Error(err))
		return domain.Product{}, err
	}

	s.logger.Info("Product updated", zap.String("product_id", id))
	return updated, nil
}

// DeleteProduct removes a product and returns its id.
// Unknown ids fail with a NotFoundError and change nothing.
func (s *ProductStore) DeleteProduct(ctx context.Context, id string) (string, error) {
	_, err := s.mutate(ctx, EventDeleted, func(current []domain.Product) ([]domain.Product, domain.Product, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, domain.Product{}, &domain.NotFoundError{ID: id}
		}

		next := make([]domain.Product, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		return next, current[idx], nil
	})
	if err != nil {
		s.logger.Warn("Product deletion failed", zap.String("product_id", id), zap.Error(err))
		return "", err
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	return id, nil
}

// Invalidate drops the cache so the next read reloads the persisted slot
func (s *ProductStore) Invalidate() {
	s.mu.Lock()
	s.state = stateUnloaded
	s.cache = nil
	s.pending = nil
	s.version++
	event := Event{Kind: EventInvalidated, Version: s.version}
	s.mu.Unlock()

	s.dispatch(event)
}

// Version increases by one with every committed change
func (s *ProductStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers an observer and returns a function that removes it
func (s *ProductStore) Subscribe(observer Observer) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = observer
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// mutate runs one read-modify-write cycle under the store lock.
// apply must not modify the slice it is given.
func (s *ProductStore) mutate(
	ctx context.Context,
	kind EventKind,
	apply func(current []domain.Product) ([]domain.Product, domain.Product, error),
) (domain.Product, error) {
	s.mu.Lock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return domain.Product{}, err
	}

	next, affected, err := apply(current)
	if err != nil {
		s.mu.Unlock()
		return domain.Product{}, err
	}

	// an in-flight save is never aborted by the caller's cancellation
	if err := s.repo.Save(context.WithoutCancel(ctx), next); err != nil {
		s.mu.Unlock()
		return domain.Product{}, &domain.StorageError{Op: "save", Err: err}
	}

	s.pending = next
	s.state = stateStale
	s.version++
	event := Event{Kind: kind, ProductID: affected.ID, Version: s.version}
	s.mu.Unlock()

	s.dispatch(event)
	return affected, nil
}

// currentLocked resolves the cache state and returns the latest committed
// collection. The caller must hold s.mu and must not modify the result.
func (s *ProductStore) currentLocked(ctx context.Context) ([]domain.Product, error) {
	switch s.state {
	case stateLoaded:
		return s.cache, nil

	case stateStale:
		s.cache = s.pending
		s.pending = nil
		s.state = stateLoaded
		return s.cache, nil
	}

	products, ok, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load product collection", zap.Error(err))
		return nil, &domain.StorageError{Op: "load", Err: err}
	}
	if !ok {
		products = s.seed()
		s.logger.Info("No persisted collection, using seed data", zap.Int("count", len(products)))
	}

	s.cache = products
	s.state = stateLoaded
	return s.cache, nil
}

// dispatch delivers event once every earlier version has been delivered.
// It runs without s.mu, so observers may read from the store.
func (s *ProductStore) dispatch(event Event) {
	s.notifyMu.Lock()
	for s.notified != event.Version-1 {
		s.notifyCond.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.notified = event.Version
		s.notifyCond.Broadcast()
		s.notifyMu.Unlock()
	}()

	s.obsMu.RLock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.obsMu.RUnlock()

	for _, observer := range observers {
		s.callObserver(observer, event)
	}
}

func (s *ProductStore) callObserver(observer Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked",
				zap.Any("panic", r),
				zap.String("kind", string(event.Kind)),
			)
		}
	}()
	observer(event)
}

func (s *ProductStore) uniqueID(current []domain.Product) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		if id != "" && indexOf(current, id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique product id after %d attempts", maxIDAttempts)
}

// FilterProducts keeps the products whose name, category or description
// contain query, case-insensitively.
func FilterProducts(products []domain.Product, query string) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return products
	}

	matches := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Category), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			matches = append(matches, p)
		}
	}
	return matches
}

func indexOf(products []domain.Product, id string) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func cloneProducts(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out
}
