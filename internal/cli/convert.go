package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vantir/abilitymod/internal/mod"
)

// NewConvertCommand creates the convert command: import a document (JSON or
// YAML), re-export it through the exchange codec, and print the result with
// its fingerprint. Because import reconstructs the exact tagged-union value
// types, a convert round-trip is also a format check.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:           "convert <document>",
		Short:         "Re-export a modification document as canonical JSON",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(rootOpts, args[0], outputPath, cmd)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the converted document here instead of stdout")
	return cmd
}

func runConvert(opts *RootOptions, docPath, outputPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := LoadDocument(docPath)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitFailure, "export failed")
	}
	fingerprint, err := mod.Fingerprint(doc.AbilityID, doc.Modifications)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitFailure, "fingerprint failed")
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil {
			formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", outputPath, err), nil)
			return NewExitError(ExitCommandError, "output unwritable")
		}
		return formatter.Success(map[string]any{
			"output":      outputPath,
			"fingerprint": fingerprint,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"document":    json.RawMessage(data),
			"fingerprint": fingerprint,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	formatter.VerboseLog("fingerprint %s", fingerprint)
	return nil
}
