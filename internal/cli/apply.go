package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vantir/abilitymod/internal/patch"
	"github.com/vantir/abilitymod/internal/resource"
)

// NewApplyCommand creates the apply command: the persistent patch path
// against a resource file on disk.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "apply <resource-file> <document>",
		Short: "Apply a modification document to an ability resource file",
		Long: `Decode an ability resource buffer, apply every modification in the
document, re-encode, and write the result. Without --output the resource
file is replaced in place.

Absent targets (unknown group, operation, or property) are silent no-ops:
the document cannot know the resource's schema ahead of time.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args[0], args[1], outputPath, cmd)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the patched resource here instead of in place")
	return cmd
}

func runApply(opts *RootOptions, resourcePath, docPath, outputPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := LoadDocument(docPath)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	buf, err := os.ReadFile(resourcePath)
	if err != nil {
		formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading %s: %v", resourcePath, err), nil)
		return NewExitError(ExitCommandError, "resource unreadable")
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	engine := patch.New(logger)
	patched, err := engine.PatchBuffer(resource.BinaryCodec{}, buf, doc.Modifications)
	if err != nil {
		formatter.Error(ErrCodeDecodeFailed, err.Error(), nil)
		return NewExitError(ExitFailure, "patch failed")
	}

	if outputPath == "" {
		outputPath = resourcePath
	}
	if err := os.WriteFile(outputPath, patched, 0o644); err != nil {
		formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", outputPath, err), nil)
		return NewExitError(ExitCommandError, "output unwritable")
	}

	formatter.VerboseLog("patched %s with %d modifications -> %s", resourcePath, len(doc.Modifications), outputPath)
	return formatter.Success(map[string]any{
		"resource":      outputPath,
		"abilityId":     doc.AbilityID,
		"modifications": len(doc.Modifications),
		"bytes":         len(patched),
	})
}

// reportLoadError renders a loader failure and converts it to an exit code.
func reportLoadError(formatter *OutputFormatter, err error) error {
	if le, ok := err.(*LoadError); ok {
		formatter.Error(le.Code, le.Message, nil)
		if le.Code == ErrCodeNotFound || le.Code == ErrCodeReadFailed || le.Code == ErrCodeBadFormat {
			return NewExitError(ExitCommandError, le.Message)
		}
		return NewExitError(ExitFailure, le.Message)
	}
	formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return NewExitError(ExitFailure, err.Error())
}
