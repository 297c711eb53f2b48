// SPDX-License-Identifier: MIT

// Package tui renders engine data for the terminal: device lists, presets,
// set history and a one-line live status.
package tui

import (
	"fmt"
	"strings"

	"emgrep/internal/analysis"
	"emgrep/internal/engine"
	"emgrep/internal/history"
	"emgrep/internal/preset"
	"emgrep/internal/source"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8A33D"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Title renders a section heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// RenderDevices formats the capture devices. The device matching selected
// is highlighted.
func RenderDevices(devices []source.Device, selected int) string {
	if len(devices) == 0 {
		return infoStyle.Render("No input devices found.")
	}

	var sb strings.Builder
	for _, d := range devices {
		info := fmt.Sprintf("[%d] %s\n", d.ID, d.Name)
		info += fmt.Sprintf("    Input channels: %d\n", d.MaxInputChannels)
		info += fmt.Sprintf("    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		info += fmt.Sprintf("    Latency: %.1f-%.1f ms\n", d.LowLatencyMs, d.HighLatencyMs)
		if d.ID == selected {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(highlightStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// RenderPresets formats the built-in presets, marking the active one.
func RenderPresets(presets []preset.Preset, active string) string {
	t := newTable("", "ID", "NAME", "HI", "LO", "TARGET (s)")
	for _, p := range presets {
		mark := ""
		if p.ID == active {
			mark = "*"
		}
		t.Row(mark, p.ID, p.Name,
			fmt.Sprintf("%.2f", p.Hi), fmt.Sprintf("%.2f", p.Lo),
			fmt.Sprintf("%.0f-%.0f", p.TargetMinSec, p.TargetMaxSec))
	}
	return t.String()
}

// RenderHistory formats finished sets, most recent first, with each set's
// duration judged against its preset's target band.
func RenderHistory(sets []history.SetSummary) string {
	if len(sets) == 0 {
		return infoStyle.Render("No sets recorded yet.")
	}

	t := newTable("WHEN", "PRESET", "REPS", "TUT (s)", "DUR (s)", "AVG (V)", "PEAK (V)", "TARGET")
	for _, s := range sets {
		target := "-"
		if p, err := preset.Lookup(s.PresetID); err == nil {
			target = string(p.Classify(s.DurationSeconds))
		}
		t.Row(
			s.Timestamp.Local().Format("2006-01-02 15:04:05"),
			s.PresetID,
			fmt.Sprintf("%d", s.Reps),
			fmt.Sprintf("%.1f", s.TUTSeconds),
			fmt.Sprintf("%.1f", s.DurationSeconds),
			fmt.Sprintf("%.4f", s.AvgV),
			fmt.Sprintf("%.4f", s.PeakV),
			target,
		)
	}
	return t.String()
}

// RenderSummary formats one finished set.
func RenderSummary(s history.SetSummary) string {
	var sb strings.Builder
	sb.WriteString(Title("Set " + s.ID))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Reps: %d\n", s.Reps)
	fmt.Fprintf(&sb, "  Time under tension: %.2f s\n", s.TUTSeconds)
	fmt.Fprintf(&sb, "  Duration: %.2f s\n", s.DurationSeconds)
	fmt.Fprintf(&sb, "  Average / peak envelope: %.4f / %.4f V\n", s.AvgV, s.PeakV)
	if s.MVCV > 0 {
		fmt.Fprintf(&sb, "  MVC: %.4f V\n", s.MVCV)
	}
	return sb.String()
}

// StatusLine formats a live status snapshot on one line.
func StatusLine(st engine.Status) string {
	gate := st.GateState
	if gate == analysis.Engaged.String() {
		gate = highlightStyle.Render(gate)
	}
	line := fmt.Sprintf("%-8s reps %3d  tut %5.1fs  rms %.4fV  ratio %4.2f",
		gate, st.Reps, st.TUTSeconds, st.RMS, st.Ratio)
	if st.Recording {
		line += fmt.Sprintf("  set %.1fs", st.SetElapsed)
	}
	if st.DroppedBatches > 0 {
		line += warnStyle.Render(fmt.Sprintf("  dropped %d", st.DroppedBatches))
	}
	return line
}
