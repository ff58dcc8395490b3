// Package course holds the catalog records the authoring agent reads and
// creates.
package course

import (
	"time"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// Asset is a searchable catalog entry: an uploaded video or document, or a
// quiz.
type Asset struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenantId"`
	Type        protocol.ContentType `json:"type"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Status      protocol.Status      `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// Hit converts the asset into a search result.
func (a Asset) Hit() protocol.ContentHit {
	return protocol.ContentHit{
		Type:        a.Type,
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Status:      a.Status,
	}
}

// Quiz is an assessment made of multiple-choice questions.
type Quiz struct {
	ID          string                  `json:"id"`
	TenantID    string                  `json:"tenantId"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Questions   []protocol.QuizQuestion `json:"questions"`
	Status      protocol.Status         `json:"status"`
	CreatedAt   time.Time               `json:"createdAt"`
}

// Asset returns the catalog entry that makes the quiz searchable.
func (q Quiz) Asset() Asset {
	return Asset{
		ID:          q.ID,
		TenantID:    q.TenantID,
		Type:        protocol.ContentQuiz,
		Title:       q.Title,
		Description: q.Description,
		Status:      q.Status,
		CreatedAt:   q.CreatedAt,
	}
}

// ModuleItem places an asset inside a module.
type ModuleItem struct {
	Type      protocol.ContentType `json:"type"`
	AssetID   string               `json:"assetId"`
	Order     int                  `json:"order"`
	IsPreview bool                 `json:"isPreview"`
}

// Module is an ordered group of assets.
type Module struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Items       []ModuleItem    `json:"items"`
	Status      protocol.Status `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Course is the final authored record.
type Course struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenantId"`
	Title            string          `json:"title"`
	ShortDescription string          `json:"shortDescription,omitempty"`
	Description      string          `json:"description,omitempty"`
	Level            protocol.Level  `json:"level,omitempty"`
	Objectives       []string        `json:"objectives,omitempty"`
	Requirements     []string        `json:"requirements,omitempty"`
	Features         []string        `json:"features,omitempty"`
	ModuleIDs        []string        `json:"moduleIds"`
	Status           protocol.Status `json:"status"`
	CreatedBy        string          `json:"createdBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}
