package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/policyfile"
)

// ValidationResult holds policy validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []string          `json:"types,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue describes one compile failure in a policy document.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policy-dir>",
		Short: "Validate policy documents",
		Long: `Compile the CUE policy documents in a directory and report errors.

Checks syntax, the document schema, and that every named merge and
read function is registered.

Exit codes:
  0 - All documents valid
  1 - One or more compile errors
  2 - Command error (directory not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, policyDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(policyDir); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("policy directory not found: %s", policyDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("policy directory not found: %s", policyDir))
	}

	cfg, err := policyfile.LoadDir(policyDir, policyfile.NewRegistry())
	if err != nil {
		return outputValidateErrors(formatter, err)
	}

	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	formatter.VerboseLog("Compiled %d type polic(ies) from %s", len(names), policyDir)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d type polic(ies) valid\n", len(names))
	return nil
}

func outputValidateErrors(formatter *OutputFormatter, err error) error {
	issues := []ValidationIssue{issueFromError(err)}

	if formatter.Format == "json" {
		if encErr := formatter.Error(ErrCodeCompileFailed, "policy validation failed", ValidationResult{
			Valid:  false,
			Errors: issues,
		}); encErr != nil {
			return encErr
		}
		return NewExitError(ExitFailure, "policy validation failed")
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n", issue.Message)
		}
	}
	return NewExitError(ExitFailure, "policy validation failed")
}

func issueFromError(err error) ValidationIssue {
	var cerr *policyfile.CompileError
	if errors.As(err, &cerr) {
		issue := ValidationIssue{Field: cerr.Field, Message: cerr.Message}
		if cerr.Pos.IsValid() {
			issue.Line = cerr.Pos.Line()
		}
		return issue
	}
	return ValidationIssue{Message: err.Error()}
}
