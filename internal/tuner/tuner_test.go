package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func TestSuggestThreshold(t *testing.T) {
	tests := []struct {
		name    string
		winners int
		p20     *float64
		want    float64
		ok      bool
	}{
		{"too few winners", 9, fp(42), 0, false},
		{"exactly enough", 10, fp(42), 42, true},
		{"no percentile", 50, nil, 0, false},
		{"zero percentile", 50, fp(0), 0, false},
		{"clamped to floor", 20, fp(3.2), 10, true},
		{"clamped to ceiling", 20, fp(1200), 500, true},
		{"within range", 20, fp(57.3), 57.3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestThreshold(tt.winners, tt.p20)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRatioCell(t *testing.T) {
	cell := RatioCell{Qualified: 40, Reached200: 30, Reached500: 10}
	assert.InDelta(t, 0.75, cell.Ratio200(), 1e-9)
	assert.InDelta(t, 0.25, cell.Ratio500(), 1e-9)

	empty := RatioCell{}
	assert.Zero(t, empty.Ratio200())
	assert.Zero(t, empty.Ratio500())
}
