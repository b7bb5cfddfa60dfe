package engine

import "strings"

// Keywords that usually mean the participant is asking about facts the
// knowledge base holds, worth an eager lookup before the completion call.
var knowledgeTriggers = []string{
	"informação", "política", "regra", "como funciona",
	"horário", "preço", "aceita", "pode", "permite",
	"cancelamento", "pagamento", "checkout", "check-in", "café",
}

var questionPrefixes = []string{"qual", "quando", "como", "onde", "quem"}

func shouldSearchKnowledge(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, trigger := range knowledgeTriggers {
		if strings.Contains(msg, trigger) {
			return true
		}
	}
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
