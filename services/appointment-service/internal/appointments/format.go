package appointments

import (
	"fmt"
	"time"
)

var ptMonths = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatSlotPT renders a slot the way notifications and mails show it,
// e.g. "dia 05 de março, às 14:00h".
func FormatSlotPT(t time.Time) string {
	return fmt.Sprintf("dia %02d de %s, às %d:%02dh", t.Day(), ptMonths[t.Month()-1], t.Hour(), t.Minute())
}

func bookedContent(clientName string, date time.Time) string {
	return fmt.Sprintf("Novo agendamento de %s para %s", clientName, FormatSlotPT(date))
}
