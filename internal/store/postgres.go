package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/posterintel/poster-research/internal/db"
	"github.com/posterintel/poster-research/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const sellerColumns = `id, slug, name, category, domain, tier, attribution_weight, pricing_weight,
	can_research, can_price, can_procure, can_be_source, search_url_template, active`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_seller":       `SELECT ` + sellerColumns + ` FROM sellers WHERE slug = $1`,
	"delete_seller":    `DELETE FROM sellers WHERE slug = $1`,
	"insert_session":   `INSERT INTO sessions (id, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_session": `UPDATE sessions SET response = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_session":      `SELECT id, request, response, status, created_at, updated_at FROM sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the sellers bulk import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sellers (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT 'dealer',
	domain              TEXT NOT NULL,
	tier                INTEGER NOT NULL DEFAULT 3,
	attribution_weight  DOUBLE PRECISION NOT NULL DEFAULT 0,
	pricing_weight      DOUBLE PRECISION NOT NULL DEFAULT 0,
	can_research        BOOLEAN NOT NULL DEFAULT true,
	can_price           BOOLEAN NOT NULL DEFAULT true,
	can_procure         BOOLEAN NOT NULL DEFAULT false,
	can_be_source       BOOLEAN NOT NULL DEFAULT false,
	search_url_template TEXT,
	active              BOOLEAN NOT NULL DEFAULT true,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sellers_domain ON sellers(domain);
CREATE INDEX IF NOT EXISTS idx_sellers_tier ON sellers(tier);
CREATE INDEX IF NOT EXISTS idx_sellers_active ON sellers(active);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	request    JSONB NOT NULL,
	response   JSONB,
	status     TEXT NOT NULL DEFAULT 'running',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertSeller(ctx context.Context, seller model.Seller) (*model.Seller, error) {
	if seller.Slug == "" {
		seller.Slug = model.Slugify(seller.Name)
	}
	if err := seller.Validate(); err != nil {
		return nil, err
	}

	id := seller.ID
	if id == "" {
		id = uuid.New().String()
	}

	var storedID string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sellers (id, slug, name, category, domain, tier, attribution_weight, pricing_weight,
		                      can_research, can_price, can_procure, can_be_source, search_url_template, active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = EXCLUDED.name, category = EXCLUDED.category, domain = EXCLUDED.domain, tier = EXCLUDED.tier,
		   attribution_weight = EXCLUDED.attribution_weight, pricing_weight = EXCLUDED.pricing_weight,
		   can_research = EXCLUDED.can_research, can_price = EXCLUDED.can_price, can_procure = EXCLUDED.can_procure,
		   can_be_source = EXCLUDED.can_be_source, search_url_template = EXCLUDED.search_url_template,
		   active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		id, seller.Slug, seller.Name, string(seller.Category), seller.Domain, seller.Tier,
		seller.AttributionWeight, seller.PricingWeight,
		seller.CanResearch, seller.CanPrice, seller.CanProcure, seller.CanBeSource,
		nullableString(seller.SearchURLTemplate), seller.Active, time.Now().UTC(),
	).Scan(&storedID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert seller %s", seller.Slug)
	}

	seller.ID = storedID
	return &seller, nil
}

func (s *PostgresStore) GetSeller(ctx context.Context, slug string) (*model.Seller, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sellerColumns+` FROM sellers WHERE slug = $1`,
		slug,
	)
	seller, err := scanPGSeller(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get seller %s", slug)
	}
	return seller, nil
}

func (s *PostgresStore) DeleteSeller(ctx context.Context, slug string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sellers WHERE slug = $1`, slug)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete seller %s", slug)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("seller not found: %s", slug)
	}
	return nil
}

func (s *PostgresStore) ListSellers(ctx context.Context, filter SellerFilter) ([]model.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, string(filter.Category))
		argIdx++
	}
	if filter.MaxTier > 0 {
		query += fmt.Sprintf(` AND tier <= $%d`, argIdx)
		args = append(args, filter.MaxTier)
		argIdx++
	}
	if filter.ActiveOnly {
		query += ` AND active`
	}
	query += ` ORDER BY tier ASC, name ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sellers")
	}
	defer rows.Close()

	var sellers []model.Seller
	for rows.Next() {
		seller, err := scanPGSeller(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan seller")
		}
		sellers = append(sellers, *seller)
	}
	return sellers, eris.Wrap(rows.Err(), "postgres: list sellers iterate")
}

// ImportSellers bulk-upserts a seller list, keyed by slug. Sellers failing
// validation are skipped; the count of written rows is returned.
func (s *PostgresStore) ImportSellers(ctx context.Context, sellers []model.Seller) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(sellers))
	for _, seller := range sellers {
		if seller.Slug == "" {
			seller.Slug = model.Slugify(seller.Name)
		}
		if err := seller.Validate(); err != nil {
			continue
		}
		rows = append(rows, []any{
			seller.Slug, seller.Name, string(seller.Category), seller.Domain, seller.Tier,
			seller.AttributionWeight, seller.PricingWeight,
			seller.CanResearch, seller.CanPrice, seller.CanProcure, seller.CanBeSource,
			nullableString(seller.SearchURLTemplate), seller.Active, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "sellers",
		Columns: []string{
			"slug", "name", "category", "domain", "tier",
			"attribution_weight", "pricing_weight",
			"can_research", "can_price", "can_procure", "can_be_source",
			"search_url_template", "active", "updated_at",
		},
		ConflictKeys: []string{"slug"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import sellers")
	}
	return int(n), nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, req model.SearchRequest) (*model.Session, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, reqJSON, string(model.SessionRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}

	return &model.Session{
		ID:        id,
		Request:   req,
		Status:    model.SessionRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID string, resp *model.SearchResponse) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal response")
	}

	status := model.SessionComplete
	if !resp.Success {
		status = model.SessionFailed
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET response = $1, status = $2, updated_at = $3 WHERE id = $4`,
		respJSON, string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	var reqJSON []byte
	var respNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, request, response, status, created_at, updated_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &reqJSON, &respNull, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}

	if err := json.Unmarshal(reqJSON, &sess.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal request")
	}
	if respNull != nil {
		sess.Response = &model.SearchResponse{}
		if err := json.Unmarshal(*respNull, sess.Response); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal response")
		}
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, request, response, status, created_at, updated_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var reqJSON []byte
		var respNull *[]byte

		if err := rows.Scan(&sess.ID, &reqJSON, &respNull, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if err := json.Unmarshal(reqJSON, &sess.Request); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal request")
		}
		if respNull != nil {
			sess.Response = &model.SearchResponse{}
			if err := json.Unmarshal(*respNull, sess.Response); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal response")
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

// scanPGSeller scans a seller row in sellerColumns order.
func scanPGSeller(row pgx.Row) (*model.Seller, error) {
	var seller model.Seller
	var category string
	var template *string

	err := row.Scan(&seller.ID, &seller.Slug, &seller.Name, &category, &seller.Domain, &seller.Tier,
		&seller.AttributionWeight, &seller.PricingWeight,
		&seller.CanResearch, &seller.CanPrice, &seller.CanProcure, &seller.CanBeSource,
		&template, &seller.Active)
	if err != nil {
		return nil, err
	}

	seller.Category = model.SellerCategory(category)
	if template != nil {
		seller.SearchURLTemplate = *template
	}
	return &seller, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
