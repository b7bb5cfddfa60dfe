package orchestrator

import "strings"

// Common WhatsApp-style typos and abbreviations, fixed before the message
// reaches the completion service.
var typoCorrections = map[string]string{
	"qero":           "quero",
	"disponibilidde": "disponibilidade",
	"reseva":         "reserva",
	"vlw":            "valeu",
	"blz":            "beleza",
	"tbm":            "também",
	"vc":             "você",
	"pq":             "porque",
}

// PreprocessMessage lowercases the inbound message and corrects known typos
// word by word.
func PreprocessMessage(msg string) string {
	fields := strings.Fields(strings.ToLower(msg))
	for i, f := range fields {
		if corrected, ok := typoCorrections[f]; ok {
			fields[i] = corrected
		}
	}
	return strings.Join(fields, " ")
}
