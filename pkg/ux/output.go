// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders cutofftune progress and results for the terminal.
//
// Output comes in two modes. ModeRich uses the lipgloss palette, icons and
// boxes and is chosen when stdout is a terminal. ModePlain prints stable
// key=value lines for pipes, CI logs and scripts.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
	ErrorBox  lipgloss.Style
	Header    lipgloss.Style
	Cell      lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return Styles.Muted.Render(string(i))
	}
}

// =============================================================================
// Output Mode
// =============================================================================

// Mode selects how a Printer formats output.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain prints uncolored key=value lines.
	ModePlain Mode = "plain"
)

// ParseMode converts "rich", "plain" or "auto" to a Mode. "auto" and unknown
// values defer to DetectMode.
func ParseMode(s string, f *os.File) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "color":
		return ModeRich
	case "plain", "machine", "quiet":
		return ModePlain
	default:
		return DetectMode(f)
	}
}

// DetectMode returns ModeRich when f is a terminal and NO_COLOR is unset.
func DetectMode(f *os.File) Mode {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeRich
	}
	return ModePlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled lines to a writer.
//
// Thread Safety: Not safe for concurrent use. The search delivers observer
// events sequentially.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a printer. A nil writer uses os.Stdout.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if w == nil {
		w = os.Stdout
	}
	if mode != ModeRich {
		mode = ModePlain
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

func (p *Printer) rich() bool {
	return p.mode == ModeRich
}

// Title prints a heading. Plain mode prints nothing.
func (p *Printer) Title(text string) {
	if !p.rich() {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if !p.rich() {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if !p.rich() {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if !p.rich() {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if !p.rich() {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints a titled box. Plain mode prints "title: line" per content line.
func (p *Printer) Box(title string, lines ...string) {
	if !p.rich() {
		for _, line := range lines {
			fmt.Fprintf(p.w, "%s: %s\n", title, line)
		}
		return
	}
	body := Styles.Title.Render(title)
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	fmt.Fprintln(p.w, Styles.Box.Render(body))
}

// Table prints rows under headers. Plain mode prints tab-separated values.
func (p *Printer) Table(headers []string, rows [][]string) {
	if !p.rich() {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		})
	fmt.Fprintln(p.w, t.Render())
}
