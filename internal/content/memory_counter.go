package content

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryCounter is an in-memory implementation of Counter.
// This is intended for local runs and testing.
type InMemoryCounter struct {
	mu       sync.RWMutex
	types    map[string]Type
	items    []Item
	feedback []Feedback
}

// NewInMemoryCounter creates a new in-memory counter.
func NewInMemoryCounter() *InMemoryCounter {
	return &InMemoryCounter{
		types: make(map[string]Type),
	}
}

// RegisterType adds or replaces a content type.
func (c *InMemoryCounter) RegisterType(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[t.Name] = t
}

// AddItem stores an item.
func (c *InMemoryCounter) AddItem(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
}

// AddFeedback stores a feedback entry.
func (c *InMemoryCounter) AddFeedback(f Feedback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = append(c.feedback, f)
}

// PublicContentTypes lists public content types by name.
func (c *InMemoryCounter) PublicContentTypes(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for _, t := range c.types {
		if t.Public {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CountAuthored counts published items.
func (c *InMemoryCounter) CountAuthored(_ context.Context, userID, contentType string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, item := range c.items {
		if item.AuthorID == userID && item.Type == contentType && item.Status == StatusPublished {
			n++
		}
	}
	return n, nil
}

// CountFeedback counts feedback by contact address.
func (c *InMemoryCounter) CountFeedback(_ context.Context, email string, includeUnapproved bool) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, f := range c.feedback {
		if !strings.EqualFold(f.AuthorEmail, email) {
			continue
		}
		if f.Status == FeedbackApproved || (includeUnapproved && f.Status == FeedbackPending) {
			n++
		}
	}
	return n, nil
}

// Ensure InMemoryCounter implements Counter interface.
var _ Counter = (*InMemoryCounter)(nil)
