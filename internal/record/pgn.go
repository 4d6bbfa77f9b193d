package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/netchess/pkg/protocol"
)

func ResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// PGN renders rec with standard headers. termination is optional.
func PGN(rec protocol.GameRecord, termination string) string {
	var b strings.Builder
	date := rec.SavedAt
	if date.IsZero() {
		date = time.Now()
	}
	pgnResult := ResultToPGN(rec.Result)
	b.WriteString("[Event \"netchess\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.Black)))
	if rec.ECO != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", sanitizePGN(rec.ECO)))
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", sanitizePGN(rec.Opening)))
	}
	if strings.TrimSpace(termination) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(termination))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(rec.SAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(rec.SAN[i])))
		if i+1 < len(rec.SAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.SAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
