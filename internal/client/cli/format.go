package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/client/models"
)

func formatRecord(r *models.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s  [%s, updated %s]", r.ID, r.Collection, r.Date, r.Status,
		time.Unix(r.UpdatedAt, 0).UTC().Format(time.RFC3339))

	switch p := r.Payload.(type) {
	case models.DailyLog:
		fmt.Fprintf(&b, "\n  flow: %s", p.Flow)
		if len(p.Symptoms) > 0 {
			fmt.Fprintf(&b, "\n  symptoms: %s", strings.Join(p.Symptoms, ", "))
		}
		if p.Mood != "" {
			fmt.Fprintf(&b, "\n  mood: %s", p.Mood)
		}
		if p.Temperature != nil {
			fmt.Fprintf(&b, "\n  temperature: %.2f", *p.Temperature)
		}
		if p.Notes != "" {
			fmt.Fprintf(&b, "\n  notes: %s", p.Notes)
		}
	case models.Cycle:
		end := "ongoing"
		if p.EndDate != nil {
			end = p.EndDate.String()
		}
		fmt.Fprintf(&b, "\n  %s .. %s", p.StartDate, end)
		if p.Predicted {
			b.WriteString(" (predicted)")
		}
	case models.Insight:
		fmt.Fprintf(&b, "\n  %s (%.0f%%)", p.Title, p.Confidence*100)
		if p.Body != "" {
			fmt.Fprintf(&b, "\n  %s", p.Body)
		}
	}
	return b.String()
}

func formatOperation(op *models.PendingOperation) string {
	next := "waiting for reconnect"
	if op.NextAttemptAt != nil {
		next = "next " + op.NextAttemptAt.Format(time.TimeOnly)
	}
	s := fmt.Sprintf("%-6s %s/%s  attempts=%d  %s", op.Kind, op.Collection, op.RecordID, op.Attempts, next)
	if op.LastError != "" {
		s += "  last error: " + op.LastError
	}
	return s
}

func formatProfile(p *models.Profile) string {
	name := p.DisplayName
	if name == "" {
		name = "(not set)"
	}
	return fmt.Sprintf("name: %s\ncycle length: %d\nperiod length: %d\ntemperature unit: %s",
		name, p.CycleLength, p.PeriodLength, p.TemperatureUnit)
}
