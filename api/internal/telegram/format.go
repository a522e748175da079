package telegram

import (
	"fmt"
	"strings"

	"truewater/api/internal/view"
)

func formatCard(c view.SampleCard) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📍 %s\n", c.LocationName)
	fmt.Fprintf(&sb, "Test #%d · %s", c.TestNumber, c.Date.Format("2006-01-02 15:04"))
	if c.Pending {
		sb.WriteString(" · analyzing")
	}
	sb.WriteString("\n")
	if len(c.AlgaeContent) == 0 {
		sb.WriteString("No algae detected.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Total: %d\n", c.TotalCount)
	for _, o := range c.AlgaeContent {
		fmt.Fprintf(&sb, "• %s: %d\n", o.Name, o.Count)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDisplay(d view.Display) string {
	if d.Selected == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(formatCard(*d.Selected))
	if d.Analysis != nil {
		if d.Analysis.Explanation != "" {
			sb.WriteString("\n\n💬 " + d.Analysis.Explanation)
		}
		sb.WriteString("\n\n📈 " + d.Analysis.HistorySummary)
	}
	return sb.String()
}
