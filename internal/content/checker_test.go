package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/privacydesk/internal/content"
	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/resilience"
)

type stubDirectory map[string]requests.Subject

func (d stubDirectory) FindByEmail(_ context.Context, email string) (*requests.Subject, error) {
	for _, s := range d {
		if s.Email == email {
			return &s, nil
		}
	}
	return nil, requests.ErrSubjectNotFound
}

func (d stubDirectory) FindByID(_ context.Context, id string) (*requests.Subject, error) {
	s, ok := d[id]
	if !ok {
		return nil, requests.ErrSubjectNotFound
	}
	return &s, nil
}

// countingCounter records how many queries the checker issued.
type countingCounter struct {
	*content.InMemoryCounter
	authoredCalls int
	feedbackCalls int
}

func (c *countingCounter) CountAuthored(ctx context.Context, userID, contentType string) (int, error) {
	c.authoredCalls++
	return c.InMemoryCounter.CountAuthored(ctx, userID, contentType)
}

func (c *countingCounter) CountFeedback(ctx context.Context, email string, includeUnapproved bool) (int, error) {
	c.feedbackCalls++
	return c.InMemoryCounter.CountFeedback(ctx, email, includeUnapproved)
}

func newCounter() *countingCounter {
	c := &countingCounter{InMemoryCounter: content.NewInMemoryCounter()}
	c.RegisterType(content.Type{Name: "article", Public: true})
	c.RegisterType(content.Type{Name: "page", Public: true})
	c.RegisterType(content.Type{Name: "revision", Public: false})
	return c
}

var directory = stubDirectory{
	"usr_1": {ID: "usr_1", Email: "a@example.com"},
}

func TestChecker_SubjectHasContent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *content.InMemoryCounter)
		want  bool
	}{
		{
			name:  "nothing",
			setup: func(*content.InMemoryCounter) {},
			want:  false,
		},
		{
			name: "published item",
			setup: func(c *content.InMemoryCounter) {
				c.AddItem(content.Item{ID: "1", Type: "page", AuthorID: "usr_1", Status: content.StatusPublished})
			},
			want: true,
		},
		{
			name: "draft only",
			setup: func(c *content.InMemoryCounter) {
				c.AddItem(content.Item{ID: "1", Type: "article", AuthorID: "usr_1", Status: content.StatusDraft})
			},
			want: false,
		},
		{
			name: "non-public type",
			setup: func(c *content.InMemoryCounter) {
				c.AddItem(content.Item{ID: "1", Type: "revision", AuthorID: "usr_1", Status: content.StatusPublished})
			},
			want: false,
		},
		{
			name: "someone else's item",
			setup: func(c *content.InMemoryCounter) {
				c.AddItem(content.Item{ID: "1", Type: "article", AuthorID: "usr_2", Status: content.StatusPublished})
			},
			want: false,
		},
		{
			name: "approved feedback",
			setup: func(c *content.InMemoryCounter) {
				c.AddFeedback(content.Feedback{ID: "c1", AuthorEmail: "A@example.com", Status: content.FeedbackApproved})
			},
			want: true,
		},
		{
			name: "pending feedback",
			setup: func(c *content.InMemoryCounter) {
				c.AddFeedback(content.Feedback{ID: "c1", AuthorEmail: "a@example.com", Status: content.FeedbackPending})
			},
			want: true,
		},
		{
			name: "spam feedback",
			setup: func(c *content.InMemoryCounter) {
				c.AddFeedback(content.Feedback{ID: "c1", AuthorEmail: "a@example.com", Status: content.FeedbackSpam})
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newCounter()
			tt.setup(counter.InMemoryCounter)
			checker := content.NewChecker(content.CheckerConfig{Directory: directory, Counter: counter})

			got, err := checker.SubjectHasContent(context.Background(), "usr_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChecker_UnknownSubject(t *testing.T) {
	checker := content.NewChecker(content.CheckerConfig{Directory: directory, Counter: newCounter()})

	got, err := checker.SubjectHasContent(context.Background(), "usr_missing")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestChecker_ShortCircuitsOnContent(t *testing.T) {
	counter := newCounter()
	counter.AddItem(content.Item{ID: "1", Type: "article", AuthorID: "usr_1", Status: content.StatusPublished})
	checker := content.NewChecker(content.CheckerConfig{Directory: directory, Counter: counter})

	got, err := checker.SubjectHasContent(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, 1, counter.authoredCalls, "article is checked first and matches")
	assert.Equal(t, 0, counter.feedbackCalls)
}

func TestChecker_Extension(t *testing.T) {
	var seen requests.Subject
	checker := content.NewChecker(content.CheckerConfig{
		Directory: directory,
		Counter:   newCounter(),
		Extension: func(_ context.Context, s requests.Subject) (bool, error) {
			seen = s
			return true, nil
		},
	})

	got, err := checker.SubjectHasContent(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "usr_1", seen.ID)
}

type failingCounter struct{ *content.InMemoryCounter }

func (failingCounter) PublicContentTypes(context.Context) ([]string, error) {
	return nil, errors.New("query timeout")
}

func TestChecker_CounterFailure(t *testing.T) {
	health := resilience.NewRegistry()
	checker := content.NewChecker(content.CheckerConfig{
		Directory: directory,
		Counter:   failingCounter{content.NewInMemoryCounter()},
		Health:    health,
	})

	_, err := checker.SubjectHasContent(context.Background(), "usr_1")
	assert.Error(t, err)

	h := health.GetHealth(content.StoreDependency)
	require.NotNil(t, h)
	assert.Equal(t, "query timeout", h.LastError)
}
