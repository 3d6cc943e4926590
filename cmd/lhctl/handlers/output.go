package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/imamik/lhctl/internal/longhorn"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	badStyle     = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// configureStyles drops colors and text attributes when output is not a
// terminal, so piped output stays plain.
func configureStyles(styled bool) {
	if !styled {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// statusOutput is the JSON form of the status command.
type statusOutput struct {
	Namespace string                  `json:"namespace"`
	Report    longhorn.VersionReport  `json:"report"`
	Conflicts longhorn.ConflictResult `json:"conflicts"`
	Readiness longhorn.ReadinessState `json:"readiness"`
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func renderReport(namespace string, report longhorn.VersionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render("Longhorn in "+namespace))
	fmt.Fprintf(&b, "  Settings:       %s\n", renderVersion(report.SettingsVersion))
	fmt.Fprintf(&b, "  Manager image:  %s %s\n", renderVersion(report.ManagerImageVersion), dimStyle.Render(report.ManagerImage))
	fmt.Fprintf(&b, "  CSI plugin:     %s %s\n", renderVersion(report.CSIImageVersion), dimStyle.Render(report.CSIImage))
	return b.String()
}

func renderVersion(v string) string {
	if v == longhorn.Unknown {
		return warnStyle.Render(v)
	}
	return v
}

func renderConflicts(c longhorn.ConflictResult) string {
	if !c.HasConflict {
		return okStyle.Render("No version conflicts") + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", badStyle.Render(fmt.Sprintf("%d version conflict(s):", len(c.Mismatches))))
	for _, m := range c.Mismatches {
		fmt.Fprintf(&b, "  - %s\n", m)
	}
	return b.String()
}

func renderReadiness(s longhorn.ReadinessState) string {
	style := warnStyle
	if s.Converged() {
		style = okStyle
	}
	return fmt.Sprintf("  Manager pods:   %s\n  CSI pods:       %s\n",
		style.Render(fmt.Sprintf("%d/%d ready", s.ManagerReady, s.ManagerTotal)),
		style.Render(fmt.Sprintf("%d/%d ready", s.CSIReady, s.CSITotal)))
}

func renderBundle(b *longhorn.BackupBundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", sectionStyle.Render("Backup bundle:"), b.Path)
	if b.Version != "" {
		fmt.Fprintf(&sb, "  Version:   %s\n", b.Version)
	}
	fmt.Fprintf(&sb, "  Artifacts: %s\n", strings.Join(b.Artifacts, ", "))
	for name, msg := range b.Failures {
		fmt.Fprintf(&sb, "  %s %s: %s\n", badStyle.Render("failed"), name, msg)
	}
	if b.Remote != "" {
		fmt.Fprintf(&sb, "  Uploaded:  %s\n", b.Remote)
	}
	return sb.String()
}

func renderResult(headline string, res *longhorn.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", okStyle.Bold(true).Render(headline))
	if res.Bundle != nil {
		b.WriteString(renderBundle(res.Bundle))
	}
	if res.Readiness.ManagerTotal > 0 || res.Readiness.CSITotal > 0 {
		b.WriteString(renderReadiness(res.Readiness))
	}
	b.WriteString(renderWarnings(res.Warnings))
	return b.String()
}

func renderWarnings(warnings []string) string {
	var b strings.Builder
	for _, w := range warnings {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("warning:"), w)
	}
	return b.String()
}

func renderVolumes(volumes []longhorn.VolumeSummary) string {
	if len(volumes) == 0 {
		return dimStyle.Render("No Longhorn volumes found") + "\n"
	}

	rows := make([][]string, 0, len(volumes))
	for _, v := range volumes {
		pvc := ""
		if v.PVC != "" {
			pvc = v.Namespace + "/" + v.PVC
		}
		rows = append(rows, []string{
			v.Name, v.State, v.Robustness, v.Size, v.Node, pvc, strings.Join(v.Workloads, ","),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("VOLUME", "STATE", "ROBUSTNESS", "SIZE", "NODE", "PVC", "WORKLOADS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			if col == 1 && row >= 0 && row < len(rows) && rows[row][1] == "attached" {
				return warnStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	return t.Render() + "\n"
}
