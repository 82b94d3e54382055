package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/benaskins/keychainctl/internal/keychain"
	"github.com/benaskins/keychainctl/internal/security"
	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")). // Green
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	addedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	removedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res keychain.Result) error {
	if jsonOut {
		return printJSON(w, res)
	}
	fmt.Fprintln(w, okStyle.Render("✓"), res.Message)
	return nil
}

type errorOutput struct {
	Success  bool   `json:"success"`
	Op       string `json:"op,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Error    string `json:"error"`
}

// printError reports a failed command. Tool failures keep the tool's own
// diagnostic.
func printError(w io.Writer, err error) {
	if !jsonOut {
		fmt.Fprintln(w, errorStyle.Render("error:"), err)
		return
	}
	out := errorOutput{Error: err.Error()}
	var kerr *security.Error
	if errors.As(err, &kerr) {
		out.Op = kerr.Op
		out.Kind = kerr.Kind.String()
		out.ExitCode = kerr.ExitCode
		out.Error = kerr.Message
	}
	printJSON(w, out)
}
