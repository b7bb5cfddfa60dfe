package orchestrator

import (
	"fmt"
	"time"
)

var weekdaysPT = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// temporalContext grounds the model in the current date and spells out the
// bare day/month rule so tool-call dates come back unambiguous.
func temporalContext(now time.Time) string {
	return fmt.Sprintf(`CONTEXTO TEMPORAL:
- Data atual: %02d/%02d/%d
- Dia da semana: %s
- Ano atual: %d
- Hora atual: %02d:%02d

IMPORTANTE:
- Quando o cliente mencionar apenas dia/mês (ex: "20/02"), assuma o ANO ATUAL (%d).
- Se a data mencionada já passou neste ano, assuma o PRÓXIMO ANO (%d).
- SEMPRE use o formato DD/MM/YYYY nas chamadas de ferramentas.`,
		now.Day(), int(now.Month()), now.Year(),
		weekdaysPT[now.Weekday()],
		now.Year(),
		now.Hour(), now.Minute(),
		now.Year(), now.Year()+1,
	)
}
