package archive

import (
	"fmt"
	"strings"
)

// FormatContext renders search results as a markdown block for prompts.
func FormatContext(res SearchResult) string {
	var b strings.Builder
	b.WriteString("## Historical Context\n\n")

	if len(res.Events) > 0 {
		b.WriteString("### Recent Events:\n")
		for _, e := range res.Events {
			fmt.Fprintf(&b, "- **%s** (%s): %s - %s\n", e.DateString(), e.Location, e.Title, e.Description)
		}
		b.WriteString("\n")
	}

	if len(res.Places) > 0 {
		b.WriteString("### Relevant Locations:\n")
		for _, p := range res.Places {
			fmt.Fprintf(&b, "- **%s** (%s): 危险度 %d/100 - %s\n", p.AncientName, p.EnglishName, p.DangerLevel, p.Description)
		}
		b.WriteString("\n")
	}

	if len(res.SurvivalTips) > 0 {
		b.WriteString("### Survival Guidance:\n")
		for _, t := range res.SurvivalTips {
			fmt.Fprintf(&b, "- %s: %s\n", t.Situation, t.Advice)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// DateString renders the event date as 548年12月, or 548年 without a month.
func (e Event) DateString() string {
	if e.Month == 0 {
		return fmt.Sprintf("%d年", e.Year)
	}
	return fmt.Sprintf("%d年%d月", e.Year, e.Month)
}
