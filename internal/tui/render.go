package tui

import (
	"fmt"
	"strings"

	"nixgen/internal/diffreport"
	"nixgen/internal/model"
)

// RenderReport formats a closure comparison for the terminal.
func RenderReport(report diffreport.Report) string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("closure diff"))
	b.WriteString("\n")

	if report.HostnameMismatch {
		b.WriteString(warnStyle.Render("comparing against another machine's generation"))
		b.WriteString("\n")
	}

	switch {
	case report.Compared && report.Rendered != "":
		b.WriteString(report.Rendered)
		if !strings.HasSuffix(report.Rendered, "\n") {
			b.WriteString("\n")
		}
	case report.Note != "":
		b.WriteString(dimStyle.Render(report.Note))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderGenerations formats the generation list as a table, newest last. The
// active generation is highlighted.
func RenderGenerations(generations []model.Generation) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("generations"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-4s %-10s %-17s %s", "", "number", "date", "specialisations")))
	b.WriteString("\n")

	for _, gen := range generations {
		marker := ""
		if gen.Current {
			marker = "*"
		}

		row := fmt.Sprintf("%-4s %-10d %-17s %s",
			marker,
			gen.Number,
			gen.Date.Format("2006-01-02 15:04"),
			strings.Join(gen.Specialisations, ", "),
		)
		if gen.Current {
			row = currentStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	if len(generations) == 0 {
		b.WriteString(dimStyle.Render("no generations recorded"))
		b.WriteString("\n")
	}

	return b.String()
}
