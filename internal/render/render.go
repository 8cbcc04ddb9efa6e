// Package render writes DH5 summaries, validation reports and catalog
// entries as styled text, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/cog-neurophys-lab/dh5io/dh5"
	"github.com/cog-neurophys-lab/dh5io/internal/catalog"
)

// Format selects the output encoding.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", Text:
		return Text, nil
	case JSON, YAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", name)
	}
}

// Renderer writes values to an output in one format.
type Renderer struct {
	out     io.Writer
	format  Format
	printer *message.Printer

	title   lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	notice  lipgloss.Style
	failure lipgloss.Style
}

// New returns a renderer writing to out. Colors are used only when out is a
// terminal.
func New(out io.Writer, format Format) *Renderer {
	r := lipgloss.NewRenderer(out)
	return &Renderer{
		out:     out,
		format:  format,
		printer: message.NewPrinter(language.English),
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		label:   r.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#3FB950")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#D29922")),
		notice:  r.NewStyle().Foreground(lipgloss.Color("#8B949E")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// encode writes v as JSON or YAML. It reports false for text output.
func (r *Renderer) encode(v any) (bool, error) {
	switch r.format {
	case JSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

// Summary writes a file overview.
func (r *Renderer) Summary(s *dh5.Summary) error {
	if done, err := r.encode(s); done {
		return err
	}

	var b strings.Builder
	b.WriteString(r.title.Render(fmt.Sprintf("DAQ-HDF5 File (version %d) %s", s.Version, filepath.Base(s.Path))))
	b.WriteString("\n")
	if len(s.Boards) > 0 {
		fmt.Fprintf(&b, "%s %s\n", r.label.Render("boards:"), strings.Join(s.Boards, ", "))
	}

	fmt.Fprintf(&b, "├─── %s\n", r.printer.Sprintf("%5d CONT Groups", len(s.Cont)))
	for _, c := range s.Cont {
		line := r.printer.Sprintf("%s  %d samples × %d channels @ %d ns", dh5.ContGroupName(c.ID), c.Samples, c.Channels, c.SamplePeriod)
		if c.Name != "" {
			line += fmt.Sprintf("  %q", c.Name)
		}
		if c.SignalType != "" {
			line += "  " + string(c.SignalType)
		}
		fmt.Fprintf(&b, "│      %s\n", line)
	}
	fmt.Fprintf(&b, "├─── %s\n", r.printer.Sprintf("%5d SPIKE Groups", len(s.Spike)))
	for _, sp := range s.Spike {
		fmt.Fprintf(&b, "│      %s\n", r.printer.Sprintf("%s  %d spikes × %d channels", dh5.SpikeGroupName(sp.ID), sp.Spikes, sp.Channels))
	}
	fmt.Fprintf(&b, "├─── %s\n", r.printer.Sprintf("%5d Events", s.Events))
	fmt.Fprintf(&b, "├─── %s\n", r.printer.Sprintf("%5d Trials in TRIALMAP", s.Trials))
	fmt.Fprintf(&b, "└─── %s\n", r.printer.Sprintf("%5d Operations", len(s.Operations)))
	for _, op := range s.Operations {
		fmt.Fprintf(&b, "       %s  %s  %s %s\n", op.Name, op.Date, r.label.Render("by"), op.Operator+" ("+op.Tool+")")
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

// validation is the encoded form of a validation result.
type validation struct {
	Path     string        `json:"path" yaml:"path"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Findings []dh5.Finding `json:"findings" yaml:"findings"`
}

// Report writes the outcome of validating path.
func (r *Renderer) Report(path string, report *dh5.Report, validateErr error) error {
	v := validation{Path: path, Valid: validateErr == nil}
	if report != nil {
		v.Findings = report.Findings
	}
	if v.Findings == nil {
		v.Findings = []dh5.Finding{}
	}
	if validateErr != nil {
		v.Error = validateErr.Error()
	}
	if done, err := r.encode(v); done {
		return err
	}

	var b strings.Builder
	if v.Valid {
		fmt.Fprintf(&b, "%s %s\n", r.ok.Render("VALID"), path)
	} else {
		fmt.Fprintf(&b, "%s %s\n", r.failure.Render("INVALID"), path)
		fmt.Fprintf(&b, "  %s\n", v.Error)
	}
	for _, f := range v.Findings {
		style := r.notice
		if f.Severity == dh5.Warning {
			style = r.warning
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", style.Render(f.Severity.String()), f.Path, f.Message)
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

// Entries writes catalog entries as a table.
func (r *Renderer) Entries(entries []catalog.Entry) error {
	if entries == nil {
		entries = []catalog.Entry{}
	}
	if done, err := r.encode(entries); done {
		return err
	}

	var b strings.Builder
	for _, e := range entries {
		status := r.ok.Render("ok  ")
		if !e.Valid {
			status = r.failure.Render("FAIL")
		}
		fmt.Fprintf(&b, "%s %s\n", status, e.Path)
		fmt.Fprintf(&b, "     %s\n", r.printer.Sprintf("v%d  %d CONT  %d SPIKE  %d samples  %d events  %d trials  %d warnings  %d notices",
			e.FileVersion, e.ContGroups, e.SpikeGroups, e.Samples, e.Events, e.Trials, e.Warnings, e.Notices))
		if e.Error != "" {
			fmt.Fprintf(&b, "     %s\n", r.label.Render(e.Error))
		}
	}
	fmt.Fprintf(&b, "%s\n", r.printer.Sprintf("%d files", len(entries)))
	_, err := io.WriteString(r.out, b.String())
	return err
}
