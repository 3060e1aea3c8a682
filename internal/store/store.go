package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/crashify360/totalloss/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	LossType  model.LossType `json:"loss_type,omitempty"`
	VIN       string         `json:"vin,omitempty"`
	TotalLoss *bool          `json:"total_loss,omitempty"`
	Since     time.Time      `json:"since,omitempty"`
	Until     time.Time      `json:"until,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Offset    int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for decisions, salvage replies
// and cached valuations.
type Store interface {
	// Decisions
	SaveDecision(ctx context.Context, d *model.Decision) (*model.DecisionRecord, error)
	// SaveDecisions stores ds atomically and returns records in input order.
	SaveDecisions(ctx context.Context, ds []*model.Decision) ([]model.DecisionRecord, error)
	GetDecision(ctx context.Context, id string) (*model.DecisionRecord, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error)
	DecisionStats(ctx context.Context, filter DecisionFilter) (*model.DecisionStats, error)

	// Salvage responses
	SaveSalvageResponse(ctx context.Context, resp *model.SalvageResponse) error
	ListSalvageResponses(ctx context.Context, decisionID string) ([]model.SalvageResponse, error)

	// Valuation cache
	GetCachedValuation(ctx context.Context, key string) ([]byte, error)
	SetCachedValuation(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredValuations(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// NewDecisionID returns an identifier of the form DEC-YYYYMMDDHHMMSS-xxxxxxxx.
func NewDecisionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return "DEC-" + now.UTC().Format("20060102150405") + "-" + suffix
}

const defaultListLimit = 100

// statsLimit bounds the rows loaded to compute aggregate stats.
const statsLimit = 100000

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
