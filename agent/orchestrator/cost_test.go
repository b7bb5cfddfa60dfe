package orchestrator

import (
	"math"
	"testing"
)

func TestUsageCost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		model     string
		tokensIn  int
		tokensOut int
		want      float64
	}{
		{"mini rates", "gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"mini small turn", "gpt-4o-mini", 1000, 500, 0.00045},
		{"full 4o", "gpt-4o", 1_000_000, 0, 2.50},
		{"4.1 mini before 4.1", "gpt-4.1-mini", 1_000_000, 1_000_000, 2.00},
		{"4.1 base", "gpt-4.1", 1_000_000, 0, 2.00},
		{"dated mini variant by prefix", "gpt-4o-mini-2024-07-18", 1_000_000, 0, 0.15},
		{"unknown model uses mini rates", "some-future-model", 1_000_000, 1_000_000, 0.75},
		{"zero tokens", "gpt-4o-mini", 0, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := UsageCost(tc.model, tc.tokensIn, tc.tokensOut)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("UsageCost(%q, %d, %d) = %v, want %v", tc.model, tc.tokensIn, tc.tokensOut, got, tc.want)
			}
		})
	}
}
