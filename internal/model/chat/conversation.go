package chat

import (
	"time"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// Conversation is the server-side record of one authoring conversation. It
// carries the confirmation gate and the active-turn marker; the transcript
// itself travels with each turn request.
type Conversation struct {
	ID            string                  `json:"id"`
	TenantID      string                  `json:"tenantId"`
	OwnerID       string                  `json:"ownerId"`
	PreviewCount  int                     `json:"previewCount"`
	LastPreview   *protocol.CoursePreview `json:"lastPreview,omitempty"`
	Confirmed     bool                    `json:"confirmed"`
	CourseIDs     []string                `json:"courseIds,omitempty"`
	TurnActive    bool                    `json:"turnActive"`
	TurnStartedAt time.Time               `json:"turnStartedAt,omitempty"`
	Version       int64                   `json:"version"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// HasPreview reports whether a course preview was produced.
func (c Conversation) HasPreview() bool {
	return c.PreviewCount > 0 && c.LastPreview != nil
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	if c.LastPreview != nil {
		preview := c.LastPreview.Clone()
		out.LastPreview = &preview
	}
	out.CourseIDs = append([]string(nil), c.CourseIDs...)
	return out
}
