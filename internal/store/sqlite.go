package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/posterintel/poster-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sellers (
	id                  TEXT PRIMARY KEY,
	slug                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT 'dealer',
	domain              TEXT NOT NULL,
	tier                INTEGER NOT NULL DEFAULT 3,
	attribution_weight  REAL NOT NULL DEFAULT 0,
	pricing_weight      REAL NOT NULL DEFAULT 0,
	can_research        INTEGER NOT NULL DEFAULT 1,
	can_price           INTEGER NOT NULL DEFAULT 1,
	can_procure         INTEGER NOT NULL DEFAULT 0,
	can_be_source       INTEGER NOT NULL DEFAULT 0,
	search_url_template TEXT,
	active              INTEGER NOT NULL DEFAULT 1,
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sellers_domain ON sellers(domain);
CREATE INDEX IF NOT EXISTS idx_sellers_tier ON sellers(tier);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	response   TEXT,
	status     TEXT NOT NULL DEFAULT 'running',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSeller(ctx context.Context, seller model.Seller) (*model.Seller, error) {
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
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sellers (id, slug, name, category, domain, tier, attribution_weight, pricing_weight,
		                      can_research, can_price, can_procure, can_be_source, search_url_template, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = excluded.name, category = excluded.category, domain = excluded.domain, tier = excluded.tier,
		   attribution_weight = excluded.attribution_weight, pricing_weight = excluded.pricing_weight,
		   can_research = excluded.can_research, can_price = excluded.can_price, can_procure = excluded.can_procure,
		   can_be_source = excluded.can_be_source, search_url_template = excluded.search_url_template,
		   active = excluded.active, updated_at = excluded.updated_at
		 RETURNING id`,
		id, seller.Slug, seller.Name, string(seller.Category), seller.Domain, seller.Tier,
		seller.AttributionWeight, seller.PricingWeight,
		seller.CanResearch, seller.CanPrice, seller.CanProcure, seller.CanBeSource,
		emptyToNull(seller.SearchURLTemplate), seller.Active, time.Now().UTC(),
	).Scan(&storedID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert seller %s", seller.Slug)
	}

	seller.ID = storedID
	return &seller, nil
}

func (s *SQLiteStore) GetSeller(ctx context.Context, slug string) (*model.Seller, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sellerColumns+` FROM sellers WHERE slug = ?`,
		slug,
	)
	seller, err := scanSeller(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get seller %s", slug)
	}
	return seller, nil
}

func (s *SQLiteStore) DeleteSeller(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sellers WHERE slug = ?`, slug)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete seller %s", slug)
	}
	return checkRowsAffected(res, "seller", slug)
}

func (s *SQLiteStore) ListSellers(ctx context.Context, filter SellerFilter) ([]model.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.MaxTier > 0 {
		query += ` AND tier <= ?`
		args = append(args, filter.MaxTier)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY tier ASC, name ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sellers")
	}
	defer rows.Close()

	var sellers []model.Seller
	for rows.Next() {
		seller, err := scanSeller(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan seller")
		}
		sellers = append(sellers, *seller)
	}
	return sellers, eris.Wrap(rows.Err(), "sqlite: list sellers iterate")
}

// ImportSellers upserts a seller list in one transaction. Sellers failing
// validation are skipped; the count of written rows is returned.
func (s *SQLiteStore) ImportSellers(ctx context.Context, sellers []model.Seller) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import sellers begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	count := 0
	for _, seller := range sellers {
		if seller.Slug == "" {
			seller.Slug = model.Slugify(seller.Name)
		}
		if seller.Validate() != nil {
			continue
		}
		id := seller.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sellers (id, slug, name, category, domain, tier, attribution_weight, pricing_weight,
			                      can_research, can_price, can_procure, can_be_source, search_url_template, active, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (slug) DO UPDATE SET
			   name = excluded.name, category = excluded.category, domain = excluded.domain, tier = excluded.tier,
			   attribution_weight = excluded.attribution_weight, pricing_weight = excluded.pricing_weight,
			   can_research = excluded.can_research, can_price = excluded.can_price, can_procure = excluded.can_procure,
			   can_be_source = excluded.can_be_source, search_url_template = excluded.search_url_template,
			   active = excluded.active, updated_at = excluded.updated_at`,
			id, seller.Slug, seller.Name, string(seller.Category), seller.Domain, seller.Tier,
			seller.AttributionWeight, seller.PricingWeight,
			seller.CanResearch, seller.CanPrice, seller.CanProcure, seller.CanBeSource,
			emptyToNull(seller.SearchURLTemplate), seller.Active, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import seller %s", seller.Slug)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import sellers commit")
	}
	return count, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, req model.SearchRequest) (*model.Session, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.SessionRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}

	return &model.Session{
		ID:        id,
		Request:   req,
		Status:    model.SessionRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, resp *model.SearchResponse) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal response")
	}

	status := model.SessionComplete
	if !resp.Success {
		status = model.SessionFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET response = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(respJSON), string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, response, status, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, request, response, status, created_at, updated_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSeller(row scannable) (*model.Seller, error) {
	var seller model.Seller
	var category string
	var template sql.NullString

	err := row.Scan(&seller.ID, &seller.Slug, &seller.Name, &category, &seller.Domain, &seller.Tier,
		&seller.AttributionWeight, &seller.PricingWeight,
		&seller.CanResearch, &seller.CanPrice, &seller.CanProcure, &seller.CanBeSource,
		&template, &seller.Active)
	if err != nil {
		return nil, err
	}

	seller.Category = model.SellerCategory(category)
	seller.SearchURLTemplate = template.String
	return &seller, nil
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var reqJSON string
	var respJSON sql.NullString

	err := row.Scan(&sess.ID, &reqJSON, &respJSON, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reqJSON), &sess.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if respJSON.Valid {
		sess.Response = &model.SearchResponse{}
		if err := json.Unmarshal([]byte(respJSON.String), sess.Response); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal response")
		}
	}
	return &sess, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
