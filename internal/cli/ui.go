package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleCode        = lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed = lipgloss.NewStyle().Foreground(colorGray)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconCached  = "cached"
	iconFresh   = "fresh"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printFile prints an indented output path.
func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// PrintError writes err to w as "✗ CODE message: cause". Uncoded errors are
// printed as they are.
func PrintError(w io.Writer, err error) {
	code := errors.GetCode(err)
	if code == "" {
		printFailure(w, "%v", err)
		return
	}
	msg := errors.UserMessage(err)
	if cause := causeOf(err); cause != nil {
		msg += ": " + cause.Error()
	}
	printFailure(w, "%s %s", styleCode.Render(string(code)), msg)
}

func causeOf(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Cause
	}
	return nil
}

// =============================================================================
// Render Output
// =============================================================================

// printResult prints the one-line summary of a rendered image.
func printResult(w io.Writer, res *pipeline.Result) {
	status, style := iconFresh, styleComputed
	if res.Cached {
		status, style = iconCached, styleCached
	}
	parts := []string{
		string(res.Record.Source),
		fmt.Sprintf("%d bytes", len(res.PNG)),
		res.Duration.Round(time.Millisecond).String(),
	}
	line := "  " + StyleDim.Render(strings.Join(parts, " · ")) + StyleDim.Render(" · ") + style.Render(status)
	fmt.Fprintln(w, line)
}

// printItem prints one bulk item as it finishes.
func printItem(w io.Writer, it pipeline.Item) {
	switch it.Status {
	case pipeline.Written:
		printSuccess(w, "%s %s", StyleValue.Render(it.Name), StyleDim.Render(it.Version))
	case pipeline.Skipped:
		printWarning(w, "%s exists, skipped", it.Name)
	default:
		printFailure(w, "%s: %s", it.Name, errorLine(it.Err))
	}
}

// printReport prints the bulk summary.
func printReport(w io.Writer, r pipeline.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s written  %s skipped  %s failed  %s\n",
		StyleNumber.Render(fmt.Sprint(r.Count(pipeline.Written))),
		StyleNumber.Render(fmt.Sprint(r.Count(pipeline.Skipped))),
		StyleNumber.Render(fmt.Sprint(r.Count(pipeline.Failed))),
		StyleDim.Render("("+r.Duration.Round(time.Millisecond).String()+")"))
}

func errorLine(err error) string {
	if code := errors.GetCode(err); code != "" {
		return string(code) + " " + errors.UserMessage(err)
	}
	return err.Error()
}
