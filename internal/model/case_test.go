package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLossTypeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lt      LossType
		valid   bool
		display string
	}{
		{LossTypeClient, true, "Client Vehicle (Own Damage)"},
		{LossTypeThirdParty, true, "Third Party Vehicle"},
		{LossType("fleet"), false, "fleet"},
		{LossType(""), false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.lt), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.valid, tt.lt.Valid())
			assert.Equal(t, tt.display, tt.lt.DisplayName())
		})
	}
}

func TestPolicyTypeValid(t *testing.T) {
	t.Parallel()

	for _, pt := range PolicyTypes {
		assert.True(t, pt.Valid(), "policy type %q should be valid", pt)
	}
	assert.False(t, PolicyType("life").Valid())
	assert.False(t, PolicyType("Comprehensive").Valid())
}

func TestExtractionMethodPriority(t *testing.T) {
	t.Parallel()

	ordered := []ExtractionMethod{
		MethodStructuredFormat,
		MethodCurrencyPattern,
		MethodContextual,
		MethodKeywordProximity,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Priority(), ordered[i].Priority())
	}
	assert.Greater(t, ExtractionMethod("unknown").Priority(), MethodKeywordProximity.Priority())
}

func TestExtractionCandidateOverlaps(t *testing.T) {
	t.Parallel()

	a := ExtractionCandidate{Start: 10, End: 20}
	assert.True(t, a.Overlaps(ExtractionCandidate{Start: 15, End: 25}))
	assert.True(t, a.Overlaps(ExtractionCandidate{Start: 0, End: 11}))
	assert.True(t, a.Overlaps(ExtractionCandidate{Start: 12, End: 14}))
	assert.False(t, a.Overlaps(ExtractionCandidate{Start: 20, End: 30}))
	assert.False(t, a.Overlaps(ExtractionCandidate{Start: 0, End: 10}))
}
