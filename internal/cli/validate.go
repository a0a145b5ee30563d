package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command: check a modification
// document against the embedded CUE schema without applying anything.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Validate a modification document against the schema",
		Long: `Validate a modification document (JSON or YAML) against the embedded
CUE schema. Faster feedback than apply when editing documents by hand.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, docPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	raw, err := os.ReadFile(docPath)
	if os.IsNotExist(err) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("document not found: %s", docPath), nil)
		return NewExitError(ExitCommandError, "document not found")
	}
	if err != nil {
		formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading %s: %v", docPath, err), nil)
		return NewExitError(ExitCommandError, "document unreadable")
	}

	jsonData, err := toJSON(docPath, raw)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	verrs, err := ValidateDocumentJSON(jsonData)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitFailure, "validation could not run")
	}

	result := ValidationResult{Valid: len(verrs) == 0, Errors: verrs}
	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", filepath.Base(docPath))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d schema violations\n", filepath.Base(docPath), len(verrs))
		for _, v := range verrs {
			if v.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", v.Path, v.Message)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", v.Message)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "document invalid")
	}
	return nil
}
