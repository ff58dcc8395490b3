// Package store persists the content catalog: searchable assets and the
// quizzes, modules and courses created by the authoring agent. Every method
// is scoped to a tenant.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/course"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrTenantRequired = errors.New("tenant id is required")
)

// SearchQuery selects catalog assets.
type SearchQuery struct {
	Text  string
	Types []protocol.ContentType
	Limit int
}

// Repository defines the catalog operations used by the agent tools.
type Repository interface {
	// SearchAssets runs a case-insensitive free-text lookup over asset titles
	// and descriptions. An empty text matches every asset.
	SearchAssets(ctx context.Context, tenantID string, q SearchQuery) ([]course.Asset, error)

	// GetAsset returns ErrNotFound when the asset does not exist in the tenant.
	GetAsset(ctx context.Context, tenantID string, typ protocol.ContentType, id string) (*course.Asset, error)

	// PutAsset registers an uploaded video or document.
	PutAsset(ctx context.Context, asset *course.Asset) error

	// CreateQuiz persists the quiz and its searchable asset atomically.
	CreateQuiz(ctx context.Context, quiz *course.Quiz) error
	GetQuiz(ctx context.Context, tenantID, id string) (*course.Quiz, error)

	CreateModule(ctx context.Context, module *course.Module) error
	GetModule(ctx context.Context, tenantID, id string) (*course.Module, error)

	CreateCourse(ctx context.Context, c *course.Course) error
	GetCourse(ctx context.Context, tenantID, id string) (*course.Course, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open returns the repository for driver.
func Open(driver, dbPath string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		db, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

func searchTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// matchScore counts the terms found in the asset title or description.
func matchScore(a course.Asset, terms []string) int {
	if len(terms) == 0 {
		return 1
	}
	haystack := strings.ToLower(a.Title + " " + a.Description)
	score := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			score++
		}
	}
	return score
}

func typeAllowed(typ protocol.ContentType, types []protocol.ContentType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == typ {
			return true
		}
	}
	return false
}

// rank keeps matching assets, best score first, then by title, then newest.
func rank(assets []course.Asset, q SearchQuery) []course.Asset {
	terms := searchTerms(q.Text)
	type scored struct {
		asset course.Asset
		score int
	}

	matches := make([]scored, 0, len(assets))
	for _, a := range assets {
		if !typeAllowed(a.Type, q.Types) {
			continue
		}
		if score := matchScore(a, terms); score > 0 {
			matches = append(matches, scored{asset: a, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		if matches[i].asset.Title != matches[j].asset.Title {
			return matches[i].asset.Title < matches[j].asset.Title
		}
		return matches[i].asset.CreatedAt.After(matches[j].asset.CreatedAt)
	})

	limit := normalizeLimit(q.Limit)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]course.Asset, len(matches))
	for i, m := range matches {
		out[i] = m.asset
	}
	return out
}
