// Package printer formats CLI output: coloured status lines and tables.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Out and Err are where status lines go.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s", strings.TrimPrefix(fmt.Sprintf(format, a...), "✓ "))
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Heading prints a cyan section title.
func Heading(title string) {
	cyan.Fprintf(Out, "%s\n", title)
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "! %s", fmt.Sprintf(format, a...))
}

// Error prints a titled error with suggestions to Err and returns a short
// error for cobra, which is configured not to print it again.
func Error(title, explanation string, suggestions ...string) error {
	red.Fprintf(Err, "%s\n\n", title)
	fmt.Fprintf(Err, "%s\n", explanation)

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}
