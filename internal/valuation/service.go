// Package valuation looks up vehicle market values and uses them to fill in
// missing policy values before validation.
package valuation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/validate"
	"github.com/crashify360/totalloss/pkg/autograp"
)

// Cache is the subset of the store used to cache lookups.
type Cache interface {
	GetCachedValuation(ctx context.Context, key string) ([]byte, error)
	SetCachedValuation(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Service wraps the AutoGrap client with a read-through cache.
type Service struct {
	client autograp.Client
	cache  Cache
	ttl    time.Duration
}

// NewService creates a Service. A nil cache disables caching.
func NewService(client autograp.Client, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{client: client, cache: cache, ttl: ttl}
}

func cacheKey(vin string) string {
	return "vin:" + strings.ToUpper(strings.TrimSpace(vin))
}

// Lookup returns the market value for vin, from cache when fresh.
// Cache failures are logged and never fail the lookup.
func (s *Service) Lookup(ctx context.Context, vin string) (*autograp.Valuation, error) {
	key := cacheKey(vin)
	log := zap.L().With(zap.String("vin", vin))

	if s.cache != nil {
		data, err := s.cache.GetCachedValuation(ctx, key)
		if err != nil {
			log.Warn("valuation: cache read failed", zap.Error(err))
		} else if data != nil {
			var v autograp.Valuation
			if err := json.Unmarshal(data, &v); err == nil {
				log.Debug("valuation: cache hit")
				return &v, nil
			}
			log.Warn("valuation: discarding corrupt cache entry")
		}
	}

	v, err := s.client.MarketValue(ctx, autograp.MarketValueRequest{VIN: vin})
	if err != nil {
		return nil, eris.Wrap(err, "valuation: lookup")
	}
	log.Info("valuation: market value retrieved",
		zap.String("market_value", v.MarketValue.StringFixed(2)),
		zap.String("confidence", v.Confidence),
	)

	if s.cache != nil {
		data, err := json.Marshal(v)
		if err == nil {
			err = s.cache.SetCachedValuation(ctx, key, data, s.ttl)
		}
		if err != nil {
			log.Warn("valuation: cache write failed", zap.Error(err))
		}
	}
	return v, nil
}

// Prefill sets raw.PolicyValue from the market value when it is empty.
// It reports whether a value was filled in.
func (s *Service) Prefill(ctx context.Context, raw *validate.RawCase) (bool, error) {
	if strings.TrimSpace(raw.PolicyValue) != "" {
		return false, nil
	}
	if !validate.ValidVIN(raw.VIN) {
		return false, eris.Errorf("valuation: cannot prefill, invalid VIN %q", raw.VIN)
	}
	v, err := s.Lookup(ctx, raw.VIN)
	if err != nil {
		return false, err
	}
	if !v.MarketValue.IsPositive() {
		return false, eris.Errorf("valuation: no market value for %s", raw.VIN)
	}
	raw.PolicyValue = v.MarketValue.StringFixed(2)
	return true, nil
}
