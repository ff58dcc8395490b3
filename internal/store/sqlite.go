package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/course"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// searchCandidateLimit bounds the rows ranked in process per search.
const searchCandidateLimit = 500

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS assets (
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, type, id)
	);
	CREATE INDEX IF NOT EXISTS idx_assets_tenant ON assets(tenant_id, type);

	CREATE TABLE IF NOT EXISTS quizzes (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		questions_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS modules (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		items_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS courses (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		short_description TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		objectives_json TEXT,
		requirements_json TEXT,
		features_json TEXT,
		module_ids_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SearchAssets narrows candidates with LIKE and ranks them like the memory
// store does.
func (s *SQLiteStore) SearchAssets(ctx context.Context, tenantID string, q SearchQuery) ([]course.Asset, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	var (
		where = []string{"tenant_id = ?"}
		args  = []interface{}{tenantID}
	)
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if terms := searchTerms(q.Text); len(terms) > 0 {
		likes := make([]string, 0, len(terms))
		for _, term := range terms {
			likes = append(likes, "lower(title) LIKE ? OR lower(description) LIKE ?")
			pattern := "%" + term + "%"
			args = append(args, pattern, pattern)
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	args = append(args, searchCandidateLimit)

	query := `
		SELECT tenant_id, type, id, title, description, status, created_at
		FROM assets WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var candidates []course.Asset
	for rows.Next() {
		var (
			a         course.Asset
			typ       string
			status    string
			createdAt int64
		)
		if err := rows.Scan(&a.TenantID, &typ, &a.ID, &a.Title, &a.Description, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		a.Type = protocol.ContentType(typ)
		a.Status = protocol.Status(status)
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		candidates = append(candidates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset rows: %w", err)
	}

	return rank(candidates, q), nil
}

func (s *SQLiteStore) GetAsset(ctx context.Context, tenantID string, typ protocol.ContentType, id string) (*course.Asset, error) {
	query := `
		SELECT title, description, status, created_at
		FROM assets WHERE tenant_id = ? AND type = ? AND id = ?`

	a := course.Asset{TenantID: tenantID, Type: typ, ID: id}
	var (
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, string(typ), id).Scan(&a.Title, &a.Description, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset row: %w", err)
	}
	a.Status = protocol.Status(status)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertAsset(ctx context.Context, db execer, a *course.Asset) error {
	query := `
	INSERT INTO assets (tenant_id, type, id, title, description, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tenant_id, type, id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		status = excluded.status`

	_, err := db.ExecContext(ctx, query,
		a.TenantID, string(a.Type), a.ID, a.Title, a.Description, string(a.Status), a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutAsset(ctx context.Context, asset *course.Asset) error {
	if err := prepare(&asset.ID, asset.TenantID, &asset.CreatedAt); err != nil {
		return err
	}
	return upsertAsset(ctx, s.db, asset)
}

func (s *SQLiteStore) CreateQuiz(ctx context.Context, quiz *course.Quiz) error {
	if err := prepare(&quiz.ID, quiz.TenantID, &quiz.CreatedAt); err != nil {
		return err
	}
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quizzes (tenant_id, id, title, description, questions_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		quiz.TenantID, quiz.ID, quiz.Title, quiz.Description, string(questions), string(quiz.Status), quiz.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	asset := quiz.Asset()
	if err := upsertAsset(ctx, tx, &asset); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quiz: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetQuiz(ctx context.Context, tenantID, id string) (*course.Quiz, error) {
	query := `
		SELECT title, description, questions_json, status, created_at
		FROM quizzes WHERE tenant_id = ? AND id = ?`

	q := course.Quiz{TenantID: tenantID, ID: id}
	var (
		questions string
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(&q.Title, &q.Description, &questions, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan quiz row: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &q.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	q.Status = protocol.Status(status)
	q.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &q, nil
}

func (s *SQLiteStore) CreateModule(ctx context.Context, module *course.Module) error {
	if err := prepare(&module.ID, module.TenantID, &module.CreatedAt); err != nil {
		return err
	}
	items, err := json.Marshal(module.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO modules (tenant_id, id, title, description, items_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		module.TenantID, module.ID, module.Title, module.Description, string(items), string(module.Status), module.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert module: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetModule(ctx context.Context, tenantID, id string) (*course.Module, error) {
	query := `
		SELECT title, description, items_json, status, created_at
		FROM modules WHERE tenant_id = ? AND id = ?`

	m := course.Module{TenantID: tenantID, ID: id}
	var (
		items     string
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(&m.Title, &m.Description, &items, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan module row: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &m.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	m.Status = protocol.Status(status)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &m, nil
}

func (s *SQLiteStore) CreateCourse(ctx context.Context, c *course.Course) error {
	if err := prepare(&c.ID, c.TenantID, &c.CreatedAt); err != nil {
		return err
	}

	lists := make([]string, 4)
	for i, list := range [][]string{c.Objectives, c.Requirements, c.Features, c.ModuleIDs} {
		raw, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshal course lists: %w", err)
		}
		lists[i] = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, moduleID := range c.ModuleIDs {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM modules WHERE tenant_id = ? AND id = ?`, c.TenantID, moduleID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("module %s: %w", moduleID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check module: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO courses (tenant_id, id, title, short_description, description, level,
			objectives_json, requirements_json, features_json, module_ids_json, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TenantID, c.ID, c.Title, c.ShortDescription, c.Description, string(c.Level),
		lists[0], lists[1], lists[2], lists[3], string(c.Status), c.CreatedBy, c.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCourse(ctx context.Context, tenantID, id string) (*course.Course, error) {
	query := `
		SELECT title, short_description, description, level,
		       objectives_json, requirements_json, features_json, module_ids_json,
		       status, created_by, created_at
		FROM courses WHERE tenant_id = ? AND id = ?`

	c := course.Course{TenantID: tenantID, ID: id}
	var (
		level, status                                 string
		objectives, requirements, features, moduleIDs sql.NullString
		createdAt                                     int64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&c.Title, &c.ShortDescription, &c.Description, &level,
		&objectives, &requirements, &features, &moduleIDs,
		&status, &c.CreatedBy, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan course row: %w", err)
	}

	targets := []struct {
		raw sql.NullString
		dst *[]string
	}{
		{objectives, &c.Objectives},
		{requirements, &c.Requirements},
		{features, &c.Features},
		{moduleIDs, &c.ModuleIDs},
	}
	for _, t := range targets {
		if !t.raw.Valid {
			continue
		}
		if err := json.Unmarshal([]byte(t.raw.String), t.dst); err != nil {
			return nil, fmt.Errorf("unmarshal course lists: %w", err)
		}
	}

	c.Level = protocol.Level(level)
	c.Status = protocol.Status(status)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &c, nil
}
