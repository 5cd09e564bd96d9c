// Package observability provides formatted terminal output for the painmap CLI.
package observability

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/orchestrator"
	"github.com/jonathan/pain-assessment/internal/recovery"
	"github.com/jonathan/pain-assessment/internal/redflags"
	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/summary"
	"github.com/jonathan/pain-assessment/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out  io.Writer
	high *color.Color
	mod  *color.Color
	low  *color.Color
	dim  *color.Color
}

// NewPrinter creates a new Printer that writes to the given writer. Colors are used only
// when colorize is set.
func NewPrinter(out io.Writer, colorize bool) *Printer {
	p := &Printer{
		out:  out,
		high: color.New(color.FgRed, color.Bold),
		mod:  color.New(color.FgYellow, color.Bold),
		low:  color.New(color.FgGreen),
		dim:  color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.high, p.mod, p.low, p.dim} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// NewTerminalPrinter writes to f, with colors only when f is a terminal.
func NewTerminalPrinter(f *os.File) *Printer {
	return NewPrinter(f, IsTerminal(f))
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		line = truncate(line, boxWidth-4)
		pad := boxWidth - 4 - utf8.RuneCountInString(line)
		fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", pad))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func (p *Printer) tierColor(u types.Urgency) *color.Color {
	switch u {
	case types.UrgencyHigh:
		return p.high
	case types.UrgencyModerate:
		return p.mod
	default:
		return p.low
	}
}

// PrintUrgency prints the colored urgency banner followed by its guidance.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintUrgency(u types.Urgency) {
	tier := u.Tier()
	if tier == "" {
		tier = types.UrgencyLow.Tier()
	}
	g := redflags.GuidanceFor(u)
	fmt.Fprintf(p.out, "%s  %s\n", p.tierColor(u).Sprintf("[%s URGENCY]", tier), g.Title)
	fmt.Fprintf(p.out, "  %s\n", g.Message)
	if g.ActionURL != "" {
		fmt.Fprintf(p.out, "  %s: %s\n", g.Action, p.dim.Sprint(g.ActionURL))
	}
}

// PrintReview outputs the review step: marked points, red flags and any open problems.
func (p *Printer) PrintReview(st orchestrator.State) {
	var sb strings.Builder
	d := st.Data

	sb.WriteString(fmt.Sprintf("Patient:  %s <%s>\n", d.User.Name, d.User.Email))
	sb.WriteString(fmt.Sprintf("Progress: %d%% (step: %s)\n", st.CompletionPercent, st.CurrentStep.Title()))
	sb.WriteString("\n")

	if len(d.Points) == 0 {
		sb.WriteString("No pain points marked\n")
	} else {
		sb.WriteString(fmt.Sprintf("Pain points (%d):\n", len(d.Points)))
		count := min(len(d.Points), maxItemsToShow)
		for i := 0; i < count; i++ {
			pt := d.Points[i]
			name := pt.RegionName
			if name == "" {
				name = "Unknown Region"
			}
			if pt.Side != "" {
				name += " (" + pt.Side + ")"
			}
			sb.WriteString(fmt.Sprintf("  • %s %d/10", name, pt.IntensityCurrent))
			if len(pt.Qualities) > 0 {
				qs := make([]string, len(pt.Qualities))
				for j, q := range pt.Qualities {
					qs[j] = strings.ReplaceAll(string(q), "_", " ")
				}
				sb.WriteString(" " + strings.Join(qs, ", "))
			}
			sb.WriteString("\n")
		}
		if len(d.Points) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(d.Points)-maxItemsToShow))
		}
	}
	sb.WriteString("\n")

	if d.RedFlags.Any {
		sb.WriteString("Red flags:\n")
		for _, key := range d.RedFlags.Reasons {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", redflags.Label(key)))
		}
	} else {
		sb.WriteString("✓ No red flags\n")
	}

	if len(d.Points) > 0 {
		proj := recovery.Project(recovery.FromData(d))
		status := "on track"
		if !proj.OnTrack() {
			status = "above target"
		}
		sb.WriteString(fmt.Sprintf("\nRecovery outlook:\n  %s\n", proj.Benchmark.Name))
		sb.WriteString(fmt.Sprintf("  Typical window %d-%d weeks, target pain %g/10\n",
			proj.Benchmark.MinWeeks, proj.Benchmark.MaxWeeks, proj.TargetPain))
		sb.WriteString(fmt.Sprintf("  Expected at %g weeks: %.1f/10 (%s)\n", proj.GoalWeeks, proj.ExpectedPain, status))
	}

	if len(st.Validation.Errors) > 0 {
		sb.WriteString("\nStill needed:\n")
		fields := make([]string, 0, len(st.Validation.Errors))
		for f := range st.Validation.Errors {
			fields = append(fields, f)
		}
		slices.Sort(fields)
		for _, f := range fields {
			for _, msg := range st.Validation.Errors[f] {
				sb.WriteString(fmt.Sprintf("  • %s\n", msg))
			}
		}
	}
	if len(st.IncompletePoints) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d point(s) need a quality\n", len(st.IncompletePoints)))
	}

	p.printBox("ASSESSMENT REVIEW", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintUrgency(st.Urgency)
}

// PrintSubmission outputs the final submission outcome.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSubmission(st submission.State) {
	switch st.Phase {
	case submission.PhaseComplete:
		text := summary.PlainText(st.Text)
		if text == "" {
			text = "No summary available."
		}
		p.printBox("CLINICAL SUMMARY", wrap(text, boxWidth-4))
		fmt.Fprintf(p.out, "Assessment: %s\n", st.AssessmentID)
		p.PrintUrgency(st.Urgency)
	case submission.PhaseFailed:
		fmt.Fprintf(p.out, "%s %s\n", p.high.Sprint("✗ Submission failed:"), st.Error)
	default:
		fmt.Fprintf(p.out, "%s\n", p.dim.Sprint(st.Status))
	}
}

// PrintAssessment outputs one stored record.
func (p *Printer) PrintAssessment(a *db.Assessment) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", a.ID))
	sb.WriteString(fmt.Sprintf("Patient:  %s <%s>\n", a.FullName, a.Email))
	sb.WriteString(fmt.Sprintf("Created:  %s\n", a.CreatedAt.UTC().Format("2006-01-02 15:04 MST")))
	sb.WriteString(fmt.Sprintf("Areas:    %d\n", len(a.PainAreas)))
	var flags []string
	for _, l := range a.RedFlags.Labeled() {
		if l.Present {
			flags = append(flags, l.Label)
		}
	}
	if len(flags) > 0 {
		sb.WriteString(fmt.Sprintf("Flags:    %s", strings.Join(flags, ", ")))
	} else {
		sb.WriteString("Flags:    none")
	}

	p.printBox("ASSESSMENT RECORD", sb.String())
	p.PrintUrgency(a.Urgency)
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
