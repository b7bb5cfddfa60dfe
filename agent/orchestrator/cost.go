package orchestrator

import "strings"

// Per-million-token USD rates, fixed per model family. Longest prefixes
// first so the mini variants match before their base family.
var modelRates = []struct {
	prefix string
	in     float64
	out    float64
}{
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4.1-mini", 0.40, 1.60},
	{"gpt-4.1", 2.00, 8.00},
	{"gpt-4o", 2.50, 10.00},
}

// UsageCost computes the monetary cost of one completion round. Unknown
// models fall back to the gpt-4o-mini rates.
func UsageCost(model string, tokensIn, tokensOut int) float64 {
	in, out := 0.15, 0.60
	for _, r := range modelRates {
		if strings.HasPrefix(model, r.prefix) {
			in, out = r.in, r.out
			break
		}
	}
	return float64(tokensIn)/1_000_000*in + float64(tokensOut)/1_000_000*out
}
