package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/naraboard/internal/apperr"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Messages go to errOut so that out carries only data (jobs, report --json).
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(errOut, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(errOut, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(errOut, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(errOut, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(errOut, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

type statusRow struct {
	label string
	value any
}

// printStatuses prints rows with their values lined up. Labels are Korean or
// English, so width is counted in runes.
func printStatuses(rows ...statusRow) {
	width := 0
	for _, r := range rows {
		width = max(width, utf8.RuneCountInString(r.label))
	}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(r.label))
		fmt.Fprintf(errOut, "  %s%s %v\n", colorize(colorBold, r.label+":"), pad, r.value)
	}
}

// kindHints tells the operator where to look for each failure class.
var kindHints = map[apperr.Kind]string{
	apperr.KindUpstreamUnavailable: "the open-data service did not answer; check upstream.service_key and the network",
	apperr.KindStoreUnavailable:    "the database could not be used; check storage.data_dir and that no other process holds it",
	apperr.KindInvalidInput:        "check the command arguments",
}

// printFailure reports a command error with a hint for known failure kinds.
func printFailure(err error) {
	printError("%v", err)
	if hint, ok := kindHints[apperr.KindOf(err)]; ok {
		fmt.Fprintln(errOut, "  "+hint)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
