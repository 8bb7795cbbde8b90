package congestion

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		count    int
		expected Tier
	}{
		{count: -1, expected: Low},
		{count: 0, expected: Low},
		{count: 4, expected: Low},
		{count: 5, expected: Medium},
		{count: 14, expected: Medium},
		{count: 15, expected: High},
		{count: 500, expected: High},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, th.Classify(tt.count), "count=%d", tt.count)
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	th := Thresholds{LowMax: 3, HighMin: 8}
	prev := th.Classify(0)
	for n := 1; n < 50; n++ {
		tier := th.Classify(n)
		assert.GreaterOrEqual(t, int(tier), int(prev))
		prev = tier
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, Thresholds{LowMax: 5, HighMin: 5}.Validate())
	assert.Error(t, Thresholds{LowMax: 10, HighMin: 5}.Validate())
	assert.Error(t, Thresholds{LowMax: -1, HighMin: 5}.Validate())

	err := Thresholds{LowMax: 10, HighMin: 5}.Validate()
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "congestion.go", "errors carry a stack trace")
}

func TestTierText(t *testing.T) {
	assert.Equal(t, "LOW", Low.String())
	assert.Equal(t, "MEDIUM", Medium.String())
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "Tier(7)", Tier(7).String())

	out, err := json.Marshal(map[string]Tier{"tier": High})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"HIGH"}`, string(out))
}

func TestTierTextRoundTrip(t *testing.T) {
	for _, tier := range []Tier{Low, Medium, High} {
		data, err := json.Marshal(struct{ C Tier }{C: tier})
		require.NoError(t, err)

		var decoded struct{ C Tier }
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, tier, decoded.C)
	}

	var tier Tier
	require.NoError(t, tier.UnmarshalText([]byte("medium")))
	assert.Equal(t, Medium, tier)

	tests := []string{"", "SEVERE", "Tier(7)", "2"}
	for _, input := range tests {
		tier := High
		assert.Error(t, tier.UnmarshalText([]byte(input)), "input=%q", input)
		assert.Equal(t, High, tier, "input=%q", input)
	}

	var decoded struct{ C Tier }
	assert.Error(t, json.Unmarshal([]byte(`{"C":"CROWDED"}`), &decoded))
}
