package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ringzer0/chaldeploy/internal/orchestration"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

var (
	colorGreen = lipgloss.Color("#22c55e")
	colorRed   = lipgloss.Color("#ef4444")
	colorBlue  = lipgloss.Color("#3b82f6")
	colorDim   = lipgloss.Color("#6b7280")
	colorWhite = lipgloss.Color("#f9fafb")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

// summaryRow is one instance line of the run summary.
type summaryRow struct {
	Name    string
	Scope   string
	Status  string
	Network string
	Address string
}

func summaryRows(state *provisioning.State) []summaryRow {
	if state == nil {
		return nil
	}
	rows := make([]summaryRow, 0, len(state.Targets))
	for _, t := range state.Targets {
		row := summaryRow{Name: t.Name(), Scope: t.Scope().String(), Status: "-", Network: "-", Address: "-"}
		if t.Instance != nil {
			row.Status = t.Instance.Status
			if n := provisioning.AttachedNetwork(t.Instance, t.Device()); n != "" {
				row.Network = n
			}
			if addrs := provisioning.StaticAddresses(t.Instance, t.Device()); !addrs.IsZero() {
				row.Address = addrs.String()
			}
		} else if t.Spec.Network != nil {
			row.Network = t.Spec.Network.Name
		}
		rows = append(rows, row)
	}
	return rows
}

// renderSummary produces the end-of-run summary. Styling is applied only
// when styled is set.
func renderSummary(report *orchestration.Report, runErr error, styled bool) string {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(render(titleStyle, "  chaldeploy: "+report.Deployment))
	b.WriteString("\n")
	b.WriteString(render(dimStyle, "  run "+report.RunID))
	b.WriteString("\n\n")

	rows := summaryRows(report.State)
	if len(rows) > 0 {
		b.WriteString(render(sectionStyle, "  Instances"))
		b.WriteString("\n")
		widths := [4]int{len("NAME"), len("SCOPE"), len("STATUS"), len("NETWORK")}
		for _, r := range rows {
			widths[0] = max(widths[0], len(r.Name))
			widths[1] = max(widths[1], len(r.Scope))
			widths[2] = max(widths[2], len(r.Status))
			widths[3] = max(widths[3], len(r.Network))
		}
		line := func(name, scope, status, network, address string) string {
			return fmt.Sprintf("    %-*s  %-*s  %-*s  %-*s  %s",
				widths[0], name, widths[1], scope, widths[2], status, widths[3], network, address)
		}
		b.WriteString(render(dimStyle, line("NAME", "SCOPE", "STATUS", "NETWORK", "ADDRESS")))
		b.WriteString("\n")
		for _, r := range rows {
			b.WriteString(line(r.Name, r.Scope, r.Status, r.Network, r.Address))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if report.State != nil && report.State.WorkloadErr != nil {
		b.WriteString(render(sectionStyle, "  Workload"))
		b.WriteString("\n")
		b.WriteString(render(failStyle, "    "+report.State.WorkloadErr.Error()))
		b.WriteString("\n")
		if len(report.State.Destroyed) == 0 {
			b.WriteString(render(dimStyle, "    instances kept for inspection"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if report.State != nil && len(report.State.Destroyed) > 0 {
		b.WriteString(render(sectionStyle, "  Torn down"))
		b.WriteString("\n")
		for _, name := range report.State.Destroyed {
			b.WriteString("    " + name + "\n")
		}
		b.WriteString("\n")
	}

	elapsed := report.Elapsed.Round(time.Millisecond)
	if runErr != nil {
		b.WriteString(render(failStyle, fmt.Sprintf("  ✗ Failed after %s", elapsed)))
	} else {
		b.WriteString(render(okStyle, fmt.Sprintf("  ✓ Completed in %s", elapsed)))
	}
	b.WriteString("\n")
	return b.String()
}
