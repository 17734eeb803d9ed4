package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scholaverse/catalog"
	"scholaverse/scoring"
	"scholaverse/tier"
)

type SQLiteStore struct {
	db      *sql.DB
	catalog *catalog.Catalog
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureSQLiteRuleSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, catalog: catalog.Default()}, nil
}

// OpenSQLite opens dbPath with the pragmas every local store expects. The
// pool is pinned to one connection so ":memory:" databases stay shared.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteRuleColumns = `id, unit_code, attribute_type, tier, options, labels, sort_order, created_at_ms, updated_at_ms`

func (s *SQLiteStore) FindRules(ctx context.Context, group string, tiers []tier.Tier) ([]scoring.AttributeRule, error) {
	values := tierStrings(tiers)
	if len(values) == 0 {
		return []scoring.AttributeRule{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	args := make([]any, 0, len(values)+1)
	args = append(args, group)
	for _, v := range values {
		args = append(args, v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sqliteRuleColumns+`
FROM attribute_rules
WHERE unit_code = ?
  AND tier IN (`+placeholders+`)
ORDER BY sort_order ASC, id ASC
`, args...)
	if err != nil {
		return nil, err
	}
	return scanSQLiteRules(rows)
}

func (s *SQLiteStore) Create(ctx context.Context, in NewRule) (scoring.AttributeRule, error) {
	in, err := normalizeNewRule(s.catalog, in)
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	optionsJSON, labelsJSON, err := encodePayload(in.Options, in.Labels)
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	nowMs := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO attribute_rules (
    unit_code, attribute_type, tier, options, labels, sort_order, created_at_ms, updated_at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, in.Group, in.Attribute, in.Tier.String(), optionsJSON, labelsJSON, in.SortOrder, nowMs, nowMs)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return scoring.AttributeRule{}, ErrDuplicateRule
		}
		return scoring.AttributeRule{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	return scoring.AttributeRule{
		ID:          id,
		Group:       in.Group,
		Attribute:   in.Attribute,
		Tier:        in.Tier,
		OptionsJSON: optionsJSON,
		LabelsJSON:  labelsJSON,
		SortOrder:   in.SortOrder,
		CreatedAt:   time.UnixMilli(nowMs).UTC(),
		UpdatedAt:   time.UnixMilli(nowMs).UTC(),
	}, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, patch RulePatch) (scoring.AttributeRule, error) {
	if err := validatePatch(patch); err != nil {
		return scoring.AttributeRule{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	defer tx.Rollback()

	rule, err := scanSQLiteRule(tx.QueryRowContext(ctx, `
SELECT `+sqliteRuleColumns+`
FROM attribute_rules
WHERE id = ?
`, id))
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	if err := applyPatch(&rule, patch); err != nil {
		return scoring.AttributeRule{}, err
	}
	nowMs := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
UPDATE attribute_rules
SET options = ?,
    labels = ?,
    updated_at_ms = ?
WHERE id = ?
`, rule.OptionsJSON, rule.LabelsJSON, nowMs, id); err != nil {
		return scoring.AttributeRule{}, err
	}
	if err := tx.Commit(); err != nil {
		return scoring.AttributeRule{}, err
	}
	rule.UpdatedAt = time.UnixMilli(nowMs).UTC()
	return rule, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM attribute_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (scoring.AttributeRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanSQLiteRule(s.db.QueryRowContext(ctx, `
SELECT `+sqliteRuleColumns+`
FROM attribute_rules
WHERE id = ?
`, id))
}

func (s *SQLiteStore) List(ctx context.Context) ([]scoring.AttributeRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sqliteRuleColumns+`
FROM attribute_rules
ORDER BY unit_code ASC, sort_order ASC, id ASC
`)
	if err != nil {
		return nil, err
	}
	out, err := scanSQLiteRules(rows)
	if err != nil {
		return nil, err
	}
	sortForListing(out)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRule(row rowScanner) (scoring.AttributeRule, error) {
	var (
		rule        scoring.AttributeRule
		rawTier     string
		createdAtMs int64
		updatedAtMs int64
	)
	err := row.Scan(
		&rule.ID,
		&rule.Group,
		&rule.Attribute,
		&rawTier,
		&rule.OptionsJSON,
		&rule.LabelsJSON,
		&rule.SortOrder,
		&createdAtMs,
		&updatedAtMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scoring.AttributeRule{}, ErrNotFound
		}
		return scoring.AttributeRule{}, err
	}
	rule.Tier = tier.Tier(rawTier)
	rule.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	rule.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return rule, nil
}

func scanSQLiteRules(rows *sql.Rows) ([]scoring.AttributeRule, error) {
	defer rows.Close()
	out := make([]scoring.AttributeRule, 0)
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func ensureSQLiteRuleSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS attribute_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    unit_code TEXT NOT NULL,
    attribute_type TEXT NOT NULL,
    tier TEXT NOT NULL CHECK (tier IN ('S', 'A', 'B', 'C', 'D')),
    options TEXT NOT NULL,
    labels TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_unit_attr_tier ON attribute_rules(unit_code, attribute_type, tier)`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_rules_lookup ON attribute_rules(unit_code, tier, sort_order)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
