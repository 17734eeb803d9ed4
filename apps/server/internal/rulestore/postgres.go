package rulestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"scholaverse/catalog"
	"scholaverse/scoring"
	"scholaverse/tier"
)

//go:embed schema_postgres.sql
var postgresSchema string

type PostgresStore struct {
	db      *sql.DB
	catalog *catalog.Catalog
}

// NewPostgresStore connects to dsn. With migrate set the embedded schema is
// applied; otherwise the attribute_rules table must already exist.
func NewPostgresStore(dsn string, migrate bool) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if migrate {
		if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply rule schema: %w", err)
		}
	}

	var schemaReady bool
	if err := db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM information_schema.tables
    WHERE table_schema = 'public'
      AND table_name = 'attribute_rules'
)`).Scan(&schemaReady); err != nil {
		_ = db.Close()
		return nil, err
	}
	if !schemaReady {
		_ = db.Close()
		return nil, fmt.Errorf("rule schema not initialized: missing table attribute_rules")
	}

	return &PostgresStore{db: db, catalog: catalog.Default()}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const postgresRuleColumns = `id, unit_code, attribute_type, tier, options, labels, sort_order, created_at, updated_at`

func (s *PostgresStore) FindRules(ctx context.Context, group string, tiers []tier.Tier) ([]scoring.AttributeRule, error) {
	values := tierStrings(tiers)
	if len(values) == 0 {
		return []scoring.AttributeRule{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT `+postgresRuleColumns+`
FROM attribute_rules
WHERE unit_code = $1
  AND tier = ANY($2)
ORDER BY sort_order ASC, id ASC
`, group, pq.Array(values))
	if err != nil {
		return nil, err
	}
	return scanPostgresRules(rows)
}

func (s *PostgresStore) Create(ctx context.Context, in NewRule) (scoring.AttributeRule, error) {
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

	rule, err := scanPostgresRule(s.db.QueryRowContext(ctx, `
INSERT INTO attribute_rules (unit_code, attribute_type, tier, options, labels, sort_order)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+postgresRuleColumns,
		in.Group, in.Attribute, in.Tier.String(), optionsJSON, labelsJSON, in.SortOrder))
	if err != nil {
		if isUniqueViolation(err) {
			return scoring.AttributeRule{}, ErrDuplicateRule
		}
		return scoring.AttributeRule{}, err
	}
	return rule, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, patch RulePatch) (scoring.AttributeRule, error) {
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

	rule, err := scanPostgresRule(tx.QueryRowContext(ctx, `
SELECT `+postgresRuleColumns+`
FROM attribute_rules
WHERE id = $1
FOR UPDATE
`, id))
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	if err := applyPatch(&rule, patch); err != nil {
		return scoring.AttributeRule{}, err
	}
	rule, err = scanPostgresRule(tx.QueryRowContext(ctx, `
UPDATE attribute_rules
SET options = $2,
    labels = $3,
    updated_at = NOW()
WHERE id = $1
RETURNING `+postgresRuleColumns,
		id, rule.OptionsJSON, rule.LabelsJSON))
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	if err := tx.Commit(); err != nil {
		return scoring.AttributeRule{}, err
	}
	return rule, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM attribute_rules WHERE id = $1`, id)
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

func (s *PostgresStore) Get(ctx context.Context, id int64) (scoring.AttributeRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPostgresRule(s.db.QueryRowContext(ctx, `
SELECT `+postgresRuleColumns+`
FROM attribute_rules
WHERE id = $1
`, id))
}

func (s *PostgresStore) List(ctx context.Context) ([]scoring.AttributeRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+postgresRuleColumns+`
FROM attribute_rules
ORDER BY unit_code ASC, sort_order ASC, id ASC
`)
	if err != nil {
		return nil, err
	}
	out, err := scanPostgresRules(rows)
	if err != nil {
		return nil, err
	}
	sortForListing(out)
	return out, nil
}

func scanPostgresRule(row rowScanner) (scoring.AttributeRule, error) {
	var (
		rule    scoring.AttributeRule
		rawTier string
	)
	err := row.Scan(
		&rule.ID,
		&rule.Group,
		&rule.Attribute,
		&rawTier,
		&rule.OptionsJSON,
		&rule.LabelsJSON,
		&rule.SortOrder,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scoring.AttributeRule{}, ErrNotFound
		}
		return scoring.AttributeRule{}, err
	}
	rule.Tier = tier.Tier(strings.TrimSpace(rawTier))
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return rule, nil
}

func scanPostgresRules(rows *sql.Rows) ([]scoring.AttributeRule, error) {
	defer rows.Close()
	out := make([]scoring.AttributeRule, 0)
	for rows.Next() {
		rule, err := scanPostgresRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
