package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/chat"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

var (
	ErrTenantRequired    = errors.New("tenant id is required")
	ErrTurnInProgress    = errors.New("a turn is already streaming for this conversation")
	ErrPreviewRequired   = errors.New("generate a course preview before creating the course")
	ErrNotConfirmed      = errors.New("the latest course preview has not been confirmed")
	ErrConversationScope = errors.New("conversation belongs to another tenant")
)

const (
	defaultTurnLease = 10 * time.Minute
	maxUpdateRetries = 5
)

// Service owns the confirmation gate and the per-conversation turn guard.
type Service struct {
	store               Store
	requireConfirmation bool
	turnLease           time.Duration
}

// Option configures Service.
type Option func(*Service)

// WithRequireConfirmation toggles the explicit confirmation step before
// course creation. A produced preview is always required.
func WithRequireConfirmation(required bool) Option {
	return func(s *Service) { s.requireConfirmation = required }
}

// WithTurnLease sets how long an unfinished turn blocks new ones.
func WithTurnLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.turnLease = d
		}
	}
}

// NewService bootstraps the service over store; nil means an in-memory store.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		store:               store,
		requireConfirmation: true,
		turnLease:           defaultTurnLease,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequiresConfirmation reports whether course creation waits for Confirm.
func (s *Service) RequiresConfirmation() bool {
	return s.requireConfirmation
}

// Open loads the conversation or provisions it when id is empty or unknown.
func (s *Service) Open(ctx context.Context, tenantID, ownerID, id string) (chat.Conversation, error) {
	if tenantID == "" {
		return chat.Conversation{}, ErrTenantRequired
	}
	if id != "" {
		existing, err := s.Get(ctx, tenantID, id)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return existing, err
		}
	} else {
		id = uuid.NewString()
	}

	c := chat.Conversation{ID: id, TenantID: tenantID, OwnerID: ownerID}
	if err := s.store.Create(ctx, &c); err != nil {
		if errors.Is(err, ErrExists) {
			return s.Get(ctx, tenantID, id)
		}
		return chat.Conversation{}, err
	}
	return c, nil
}

// Get returns the conversation when it belongs to tenantID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (chat.Conversation, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return chat.Conversation{}, err
	}
	if c.TenantID != tenantID {
		return chat.Conversation{}, ErrConversationScope
	}
	return *c, nil
}

// BeginTurn marks a turn as active. It fails with ErrTurnInProgress while
// another turn holds the conversation.
func (s *Service) BeginTurn(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(c *chat.Conversation) error {
		if c.TurnActive && time.Since(c.TurnStartedAt) < s.turnLease {
			return ErrTurnInProgress
		}
		c.TurnActive = true
		c.TurnStartedAt = time.Now().UTC()
		return nil
	})
}

// EndTurn releases the turn marker.
func (s *Service) EndTurn(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(c *chat.Conversation) error {
		c.TurnActive = false
		c.TurnStartedAt = time.Time{}
		return nil
	})
}

// RecordPreview stores the latest preview. Any earlier confirmation no
// longer applies.
func (s *Service) RecordPreview(ctx context.Context, id string, preview protocol.CoursePreview) error {
	return s.mutate(ctx, id, func(c *chat.Conversation) error {
		p := preview.Clone()
		c.PreviewCount++
		c.LastPreview = &p
		c.Confirmed = false
		return nil
	})
}

// Confirm approves the latest preview.
func (s *Service) Confirm(ctx context.Context, tenantID, id string) (chat.Conversation, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return chat.Conversation{}, err
	}

	return s.update(ctx, id, func(c *chat.Conversation) error {
		if !c.HasPreview() {
			return ErrPreviewRequired
		}
		c.Confirmed = true
		return nil
	})
}

// Claim is the gate state consumed by a course creation attempt.
type Claim struct {
	PreviewCount int
	Confirmed    bool
}

// ClaimCourse checks the gate and consumes the confirmation atomically so
// concurrent creation attempts cannot share one approval.
func (s *Service) ClaimCourse(ctx context.Context, id string) (Claim, error) {
	var claim Claim
	err := s.mutate(ctx, id, func(c *chat.Conversation) error {
		if !c.HasPreview() {
			return ErrPreviewRequired
		}
		if s.requireConfirmation && !c.Confirmed {
			return ErrNotConfirmed
		}
		claim = Claim{PreviewCount: c.PreviewCount, Confirmed: c.Confirmed}
		c.Confirmed = false
		return nil
	})
	return claim, err
}

// ReleaseClaim restores a confirmation after a failed creation, unless a
// newer preview has replaced the one it approved.
func (s *Service) ReleaseClaim(ctx context.Context, id string, claim Claim) error {
	if !claim.Confirmed {
		return nil
	}
	return s.mutate(ctx, id, func(c *chat.Conversation) error {
		if c.PreviewCount == claim.PreviewCount {
			c.Confirmed = true
		}
		return nil
	})
}

// CourseCreated records a finalized course.
func (s *Service) CourseCreated(ctx context.Context, id, courseID string) error {
	return s.mutate(ctx, id, func(c *chat.Conversation) error {
		c.CourseIDs = append(c.CourseIDs, courseID)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*chat.Conversation) error) error {
	_, err := s.update(ctx, id, fn)
	return err
}

// update applies fn under optimistic locking, retrying on version conflicts,
// and returns the stored result.
func (s *Service) update(ctx context.Context, id string, fn func(*chat.Conversation) error) (chat.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		c, err := s.store.Get(ctx, id)
		if err != nil {
			return chat.Conversation{}, err
		}
		if err := fn(c); err != nil {
			return chat.Conversation{}, err
		}
		err = s.store.Update(ctx, c)
		if err == nil {
			return *c, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return chat.Conversation{}, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return chat.Conversation{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return chat.Conversation{}, lastErr
}
