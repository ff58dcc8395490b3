package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/course"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

type assetKey struct {
	tenantID string
	typ      protocol.ContentType
	id       string
}

type recordKey struct {
	tenantID string
	id       string
}

// MemoryStore keeps the catalog in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	assets  map[assetKey]course.Asset
	quizzes map[recordKey]course.Quiz
	modules map[recordKey]course.Module
	courses map[recordKey]course.Course
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[assetKey]course.Asset),
		quizzes: make(map[recordKey]course.Quiz),
		modules: make(map[recordKey]course.Module),
		courses: make(map[recordKey]course.Course),
	}
}

func prepare(id *string, tenantID string, createdAt *time.Time) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) SearchAssets(ctx context.Context, tenantID string, q SearchQuery) ([]course.Asset, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	s.mu.RLock()
	candidates := make([]course.Asset, 0, len(s.assets))
	for key, asset := range s.assets {
		if key.tenantID == tenantID {
			candidates = append(candidates, asset)
		}
	}
	s.mu.RUnlock()

	return rank(candidates, q), nil
}

func (s *MemoryStore) GetAsset(ctx context.Context, tenantID string, typ protocol.ContentType, id string) (*course.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[assetKey{tenantID: tenantID, typ: typ, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return &asset, nil
}

func (s *MemoryStore) PutAsset(ctx context.Context, asset *course.Asset) error {
	if err := prepare(&asset.ID, asset.TenantID, &asset.CreatedAt); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[assetKey{tenantID: asset.TenantID, typ: asset.Type, id: asset.ID}] = *asset
	return nil
}

func (s *MemoryStore) CreateQuiz(ctx context.Context, quiz *course.Quiz) error {
	if err := prepare(&quiz.ID, quiz.TenantID, &quiz.CreatedAt); err != nil {
		return err
	}

	stored := *quiz
	stored.Questions = append([]protocol.QuizQuestion(nil), quiz.Questions...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[recordKey{tenantID: quiz.TenantID, id: quiz.ID}] = stored
	s.assets[assetKey{tenantID: quiz.TenantID, typ: protocol.ContentQuiz, id: quiz.ID}] = stored.Asset()
	return nil
}

func (s *MemoryStore) GetQuiz(ctx context.Context, tenantID, id string) (*course.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[recordKey{tenantID: tenantID, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return &quiz, nil
}

func (s *MemoryStore) CreateModule(ctx context.Context, module *course.Module) error {
	if err := prepare(&module.ID, module.TenantID, &module.CreatedAt); err != nil {
		return err
	}

	stored := *module
	stored.Items = append([]course.ModuleItem(nil), module.Items...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[recordKey{tenantID: module.TenantID, id: module.ID}] = stored
	return nil
}

func (s *MemoryStore) GetModule(ctx context.Context, tenantID, id string) (*course.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	module, ok := s.modules[recordKey{tenantID: tenantID, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return &module, nil
}

func (s *MemoryStore) CreateCourse(ctx context.Context, c *course.Course) error {
	if err := prepare(&c.ID, c.TenantID, &c.CreatedAt); err != nil {
		return err
	}

	stored := *c
	stored.ModuleIDs = append([]string(nil), c.ModuleIDs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, moduleID := range stored.ModuleIDs {
		if _, ok := s.modules[recordKey{tenantID: c.TenantID, id: moduleID}]; !ok {
			return fmt.Errorf("module %s: %w", moduleID, ErrNotFound)
		}
	}
	s.courses[recordKey{tenantID: c.TenantID, id: c.ID}] = stored
	return nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, tenantID, id string) (*course.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[recordKey{tenantID: tenantID, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}
