package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TimurManjosov/chainrules/internal/audit"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// PostgresStore is a PostgreSQL implementation of the Store interface.
// Rules are stored as JSONB documents; it also serves as an audit.Sink.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ audit.Sink = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *PostgresStore) ListRules(ctx context.Context) ([]rules.Rule, error) {
	rows, err := p.pool.Query(ctx, `SELECT body FROM rules ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]rules.Rule, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		r, err := decodeRule(body)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRule(ctx context.Context, id string) (rules.Rule, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM rules WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Rule{}, ErrNotFound
		}
		return rules.Rule{}, err
	}
	return decodeRule(body)
}

func (p *PostgresStore) CreateRule(ctx context.Context, r rules.Rule) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO rules (id, body, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		r.ID, body, r.Metadata.CreatedAt, r.Metadata.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresStore) UpdateRule(ctx context.Context, r rules.Rule) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE rules SET body = $2, updated_at = $3 WHERE id = $1`,
		r.ID, body, r.Metadata.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SaveDeployment(ctx context.Context, d Deployment) error {
	ids, err := json.Marshal(d.RuleIDs)
	if err != nil {
		return fmt.Errorf("encode rule ids: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO deployments (address, chain, network, rule_ids, deployed_at, transaction_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			chain = EXCLUDED.chain,
			network = EXCLUDED.network,
			rule_ids = EXCLUDED.rule_ids,
			deployed_at = EXCLUDED.deployed_at,
			transaction_hash = EXCLUDED.transaction_hash`,
		d.Address, d.Chain, d.Network, ids, d.DeployedAt, d.TransactionHash)
	return err
}

func (p *PostgresStore) ListDeployments(ctx context.Context) ([]Deployment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT address, chain, network, rule_ids, deployed_at, transaction_hash
		FROM deployments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Deployment, 0)
	for rows.Next() {
		var (
			d   Deployment
			ids []byte
		)
		if err := rows.Scan(&d.Address, &d.Chain, &d.Network, &ids, &d.DeployedAt, &d.TransactionHash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(ids, &d.RuleIDs); err != nil {
			return nil, fmt.Errorf("decode rule ids for %s: %w", d.Address, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Write persists an audit entry.
func (p *PostgresStore) Write(ctx context.Context, e audit.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		details = []byte("{}")
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO audit_entries (id, event, details, occurred_at, integrity_hash, request_id, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Event), details, e.Timestamp, e.IntegrityHash, e.RequestID, e.Actor)
	return err
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func decodeRule(body []byte) (rules.Rule, error) {
	var r rules.Rule
	if err := json.Unmarshal(body, &r); err != nil {
		return rules.Rule{}, fmt.Errorf("decode rule: %w", err)
	}
	return r, nil
}
