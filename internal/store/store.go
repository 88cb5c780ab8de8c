package store

import (
	"context"
	"time"

	"github.com/posterintel/poster-research/internal/model"
)

// SellerFilter specifies criteria for listing registry sellers.
type SellerFilter struct {
	Category   model.SellerCategory `json:"category,omitempty"`
	MaxTier    int                  `json:"max_tier,omitempty"`
	ActiveOnly bool                 `json:"active_only,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
}

// SessionFilter specifies criteria for listing research sessions.
type SessionFilter struct {
	Status       model.SessionStatus `json:"status,omitempty"`
	CreatedAfter time.Time           `json:"created_after,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	Offset       int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research engine.
type Store interface {
	// Sellers
	UpsertSeller(ctx context.Context, seller model.Seller) (*model.Seller, error)
	GetSeller(ctx context.Context, slug string) (*model.Seller, error)
	DeleteSeller(ctx context.Context, slug string) error
	ListSellers(ctx context.Context, filter SellerFilter) ([]model.Seller, error)
	ImportSellers(ctx context.Context, sellers []model.Seller) (int, error)

	// Sessions
	CreateSession(ctx context.Context, req model.SearchRequest) (*model.Session, error)
	CompleteSession(ctx context.Context, sessionID string, resp *model.SearchResponse) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
