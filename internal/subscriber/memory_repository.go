package subscriber

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Useful for testing and development.
type InMemoryRepository struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	emails      map[string]string
}

// NewInMemoryRepository creates a new in-memory subscriber repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		subscribers: make(map[string]*Subscriber),
		emails:      make(map[string]string),
	}
}

// Create stores a new subscriber.
func (r *InMemoryRepository) Create(_ context.Context, sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.emails[sub.Email]; ok {
		return ErrEmailTaken
	}
	r.subscribers[sub.ID] = copySubscriber(sub)
	r.emails[sub.Email] = sub.ID
	return nil
}

// Update replaces a stored subscriber.
func (r *InMemoryRepository) Update(_ context.Context, sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[sub.ID]; !ok {
		return ErrSubscriberNotFound
	}
	r.subscribers[sub.ID] = copySubscriber(sub)
	return nil
}

// GetByEmail retrieves a subscriber by email.
func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[email]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return copySubscriber(r.subscribers[id]), nil
}

// GetByVerifyToken retrieves a subscriber by verification token.
func (r *InMemoryRepository) GetByVerifyToken(_ context.Context, token string) (*Subscriber, error) {
	return r.find(func(s *Subscriber) bool { return s.VerifyToken == token })
}

// GetByManageToken retrieves a subscriber by manage token.
func (r *InMemoryRepository) GetByManageToken(_ context.Context, token string) (*Subscriber, error) {
	return r.find(func(s *Subscriber) bool { return s.ManageToken == token })
}

// ListActive returns verified subscribers that have not unsubscribed.
func (r *InMemoryRepository) ListActive(_ context.Context) ([]*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscriber
	for _, s := range r.subscribers {
		if s.Active() {
			out = append(out, copySubscriber(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) find(match func(*Subscriber) bool) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subscribers {
		if match(s) {
			return copySubscriber(s), nil
		}
	}
	return nil, ErrSubscriberNotFound
}

var _ Repository = (*InMemoryRepository)(nil)
