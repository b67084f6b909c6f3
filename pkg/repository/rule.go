package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/newsdigest/pkg/domain"
)

// RuleRepository handles saved extraction rules
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// SaveRule stores the rule for the origin, replacing the previous one
func (r *RuleRepository) SaveRule(ctx context.Context, origin string, rule domain.RuleConfig) error {
	origin = domain.NormalizeOrigin(origin)
	if origin == "" {
		return fmt.Errorf("save rule: empty origin")
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	return withRetry(ctx, func() error {
		query := `
			INSERT INTO extraction_rules (origin, rule, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(origin) DO UPDATE SET rule = excluded.rule, updated_at = excluded.updated_at
		`
		if _, err := r.db.ExecContext(ctx, query, origin, string(data)); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("save rule: %w", err)}
		}
		return nil
	})
}

// GetRule returns the saved rule for the origin, ok is false when there is none
func (r *RuleRepository) GetRule(ctx context.Context, origin string) (rule domain.RuleConfig, ok bool, err error) {
	var data string
	err = r.db.GetContext(ctx, &data, "SELECT rule FROM extraction_rules WHERE origin = ?", domain.NormalizeOrigin(origin))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RuleConfig{}, false, nil
	}
	if err != nil {
		return domain.RuleConfig{}, false, fmt.Errorf("get rule: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rule); err != nil {
		return domain.RuleConfig{}, false, fmt.Errorf("unmarshal rule for %s: %w", origin, err)
	}
	return rule, true, nil
}

// Origins lists origins having a saved rule
func (r *RuleRepository) Origins(ctx context.Context) ([]string, error) {
	var res []string
	if err := r.db.SelectContext(ctx, &res, "SELECT origin FROM extraction_rules ORDER BY origin"); err != nil {
		return nil, fmt.Errorf("get rule origins: %w", err)
	}
	return res, nil
}
