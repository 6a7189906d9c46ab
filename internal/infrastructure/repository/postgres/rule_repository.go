package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// RuleRepository serves the rule catalog: check definitions and rule pack
// membership. Definitions are immutable reference data seeded at startup.
type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) GetCheck(ctx context.Context, key string) (*domain.CheckDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT key, title, COALESCE(description,''), severity, hitl, COALESCE(resolver_hint,'')
FROM check_definitions
WHERE key = $1
`, key)

	var def domain.CheckDefinition
	var severity string
	err := row.Scan(&def.Key, &def.Title, &def.Description, &severity, &def.HITL, &def.ResolverHint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCheckNotFound, "get check", fmt.Errorf("key %s", key))
		}
		return nil, fmt.Errorf("scan check definition: %w", err)
	}
	def.Severity = domain.Severity(severity)
	return &def, nil
}

func (r *RuleRepository) ListPackChecks(ctx context.Context, packCode string) ([]domain.CheckDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT d.key, d.title, COALESCE(d.description,''), d.severity, d.hitl, COALESCE(d.resolver_hint,'')
FROM rule_pack_checks pc
JOIN check_definitions d ON d.key = pc.check_key
WHERE pc.pack_code = $1
ORDER BY d.key
`, packCode)
	if err != nil {
		return nil, fmt.Errorf("query pack checks: %w", err)
	}
	defer rows.Close()

	var defs []domain.CheckDefinition
	for rows.Next() {
		var def domain.CheckDefinition
		var severity string
		if err := rows.Scan(&def.Key, &def.Title, &def.Description, &severity, &def.HITL, &def.ResolverHint); err != nil {
			return nil, fmt.Errorf("scan pack check: %w", err)
		}
		def.Severity = domain.Severity(severity)
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pack checks: %w", err)
	}
	return defs, nil
}

// SeedCatalog upserts definitions and packs from the rule pack files. Runs
// at process start, inside one transaction so a partially applied catalog
// never becomes visible.
func (r *RuleRepository) SeedCatalog(ctx context.Context, defs []domain.CheckDefinition, packs []domain.RulePack) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range defs {
		def := &defs[i]
		if err := def.Validate(); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO check_definitions (key, title, description, severity, hitl, resolver_hint)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (key) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	severity = EXCLUDED.severity,
	hitl = EXCLUDED.hitl,
	resolver_hint = EXCLUDED.resolver_hint
`, def.Key, def.Title, def.Description, string(def.Severity), def.HITL, def.ResolverHint)
		if err != nil {
			return fmt.Errorf("upsert check definition %s: %w", def.Key, err)
		}
	}

	for i := range packs {
		pack := &packs[i]
		_, err := tx.ExecContext(ctx, `
INSERT INTO rule_packs (code, title) VALUES ($1,$2)
ON CONFLICT (code) DO UPDATE SET title = EXCLUDED.title
`, pack.Code, pack.Title)
		if err != nil {
			return fmt.Errorf("upsert rule pack %s: %w", pack.Code, err)
		}
		for _, pc := range pack.Checks {
			_, err := tx.ExecContext(ctx, `
INSERT INTO rule_pack_checks (pack_code, check_key, weight) VALUES ($1,$2,$3)
ON CONFLICT (pack_code, check_key) DO UPDATE SET weight = EXCLUDED.weight
`, pack.Code, pc.CheckKey, pc.Weight)
			if err != nil {
				return fmt.Errorf("upsert pack check %s/%s: %w", pack.Code, pc.CheckKey, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}
