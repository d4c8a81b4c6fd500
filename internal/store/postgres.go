package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandbeam/brandbeam/pkg/models"
)

// PostgresStore is the pgx-backed Store for production deployments.
//
// Expected schema:
//
//	CREATE TABLE principals (
//	    id          TEXT PRIMARY KEY,
//	    tier        TEXT NOT NULL,
//	    tokens_used BIGINT NOT NULL DEFAULT 0,
//	    api_token   TEXT UNIQUE NOT NULL,
//	    cycle_start TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tier, tokens_used, cycle_start, created_at FROM principals WHERE id = $1`, id)
	return scanPrincipal(row, id)
}

func (s *PostgresStore) GetPrincipalByToken(ctx context.Context, token string) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tier, tokens_used, cycle_start, created_at FROM principals WHERE api_token = $1`, token)
	return scanPrincipal(row, "token")
}

func (s *PostgresStore) CreatePrincipal(ctx context.Context, p *models.Principal, token string) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CycleStart.IsZero() {
		p.CycleStart = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO principals (id, tier, tokens_used, api_token, cycle_start) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Tier, p.TokensUsed, token, p.CycleStart)
	if err != nil {
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddTokensUsed(ctx context.Context, id string, amount int64) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`UPDATE principals SET tokens_used = tokens_used + $2 WHERE id = $1 RETURNING tokens_used`,
		id, amount).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &ErrNotFound{Entity: "principal", Key: id}
	}
	if err != nil {
		return 0, fmt.Errorf("add tokens used: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) ListPrincipals(ctx context.Context) ([]models.Principal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tier, tokens_used, cycle_start, created_at FROM principals`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []models.Principal
	for rows.Next() {
		var p models.Principal
		if err := rows.Scan(&p.ID, &p.Tier, &p.TokensUsed, &p.CycleStart, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResetUsage(ctx context.Context, id string, cycleStart time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE principals SET tokens_used = 0, cycle_start = $2 WHERE id = $1`,
		id, cycleStart)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "principal", Key: id}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPrincipal(row pgx.Row, key string) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(&p.ID, &p.Tier, &p.TokensUsed, &p.CycleStart, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "principal", Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	return &p, nil
}
