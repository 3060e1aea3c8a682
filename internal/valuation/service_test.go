package valuation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/validate"
	"github.com/crashify360/totalloss/pkg/autograp"
	"github.com/crashify360/totalloss/pkg/autograp/mocks"
)

func valuationFor(value decimal.Decimal) func(context.Context, autograp.MarketValueRequest) *autograp.Valuation {
	return func(_ context.Context, req autograp.MarketValueRequest) *autograp.Valuation {
		return &autograp.Valuation{VIN: req.VIN, MarketValue: value, Confidence: "high"}
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) GetCachedValuation(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memCache) SetCachedValuation(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.ttls[key] = ttl
	return nil
}

const vin = "1HGBH41JXMN109186"

func TestLookup_CachesResult(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("MarketValue", mock.Anything, autograp.MarketValueRequest{VIN: vin}).
		Return(valuationFor(decimal.NewFromInt(24000)), nil).Once()
	cache := newMemCache()
	svc := NewService(client, cache, 6*time.Hour)

	first, err := svc.Lookup(context.Background(), vin)
	require.NoError(t, err)
	second, err := svc.Lookup(context.Background(), vin)
	require.NoError(t, err)

	assert.True(t, first.MarketValue.Equal(second.MarketValue))
	assert.Equal(t, 6*time.Hour, cache.ttls["vin:"+vin])
}

func TestLookup_NoCache(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("MarketValue", mock.Anything, mock.Anything).
		Return(valuationFor(decimal.NewFromInt(24000)), nil).Twice()
	svc := NewService(client, nil, 0)

	_, err := svc.Lookup(context.Background(), vin)
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), vin)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "MarketValue", 2)
}

func TestLookup_ClientError(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("MarketValue", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	svc := NewService(client, newMemCache(), time.Hour)

	_, err := svc.Lookup(context.Background(), vin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valuation: lookup")
}

func TestPrefill(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("MarketValue", mock.Anything, mock.Anything).
		Return(valuationFor(decimal.RequireFromString("24500.5")), nil).Once()
	svc := NewService(client, nil, time.Hour)

	raw := validate.RawCase{VIN: vin}
	filled, err := svc.Prefill(context.Background(), &raw)
	require.NoError(t, err)
	assert.True(t, filled)
	assert.Equal(t, "24500.50", raw.PolicyValue)

	raw = validate.RawCase{VIN: vin, PolicyValue: "20000"}
	filled, err = svc.Prefill(context.Background(), &raw)
	require.NoError(t, err)
	assert.False(t, filled)
	assert.Equal(t, "20000", raw.PolicyValue)
}

func TestPrefill_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewService(mocks.NewMockClient(t), nil, time.Hour).Prefill(context.Background(), &validate.RawCase{VIN: "bad"})
	assert.Error(t, err)

	client := mocks.NewMockClient(t)
	client.On("MarketValue", mock.Anything, mock.Anything).Return(valuationFor(decimal.Zero), nil)
	_, err = NewService(client, nil, time.Hour).Prefill(context.Background(), &validate.RawCase{VIN: vin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no market value")
}
