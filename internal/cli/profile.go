package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/profile"
)

// NewProfileCommand creates the profile command group: named modification
// documents persisted in a local SQLite database.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved modification profiles",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "profile database path")

	cmd.AddCommand(newProfileSaveCommand(rootOpts, &dbPath))
	cmd.AddCommand(newProfileShowCommand(rootOpts, &dbPath))
	cmd.AddCommand(newProfileListCommand(rootOpts, &dbPath))
	cmd.AddCommand(newProfileDeleteCommand(rootOpts, &dbPath))
	return cmd
}

func defaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "abilitymod", "profiles.db")
	}
	return "profiles.db"
}

func openStore(formatter *OutputFormatter, dbPath string) (*profile.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		formatter.Error(ErrCodeStoreError, fmt.Sprintf("creating %s: %v", filepath.Dir(dbPath), err), nil)
		return nil, NewExitError(ExitCommandError, "profile db unavailable")
	}
	store, err := profile.Open(dbPath)
	if err != nil {
		formatter.Error(ErrCodeStoreError, err.Error(), nil)
		return nil, NewExitError(ExitCommandError, "profile db unavailable")
	}
	return store, nil
}

func newProfileSaveCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "save <name> <document>",
		Short:         "Save a modification document under a name",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			doc, err := LoadDocument(args[1])
			if err != nil {
				return reportLoadError(formatter, err)
			}

			store, err := openStore(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Save(cmd.Context(), args[0], doc); err != nil {
				formatter.Error(ErrCodeStoreError, err.Error(), nil)
				return NewExitError(ExitFailure, "save failed")
			}
			fingerprint, _ := mod.Fingerprint(doc.AbilityID, doc.Modifications)
			return formatter.Success(map[string]any{
				"name":        args[0],
				"abilityId":   doc.AbilityID,
				"fingerprint": fingerprint,
			})
		},
	}
}

func newProfileShowCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "show <name>",
		Short:         "Print a saved profile's document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			store, err := openStore(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, profile.ErrNotFound) {
				formatter.Error(ErrCodeNotFound, err.Error(), nil)
				return NewExitError(ExitFailure, "unknown profile")
			}
			if err != nil {
				formatter.Error(ErrCodeStoreError, err.Error(), nil)
				return NewExitError(ExitFailure, "load failed")
			}

			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{
					"name":        p.Name,
					"abilityId":   p.AbilityID,
					"fingerprint": p.Fingerprint,
					"document":    p.Document,
					"updatedAt":   p.UpdatedAt,
				})
			}
			data, err := formatDocument(p.Document)
			if err != nil {
				formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return NewExitError(ExitFailure, "export failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (ability %d, %s)\n%s\n", p.Name, p.AbilityID, p.Fingerprint, data)
			return nil
		},
	}
}

func newProfileListCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List saved profiles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			store, err := openStore(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			profiles, err := store.List(cmd.Context())
			if err != nil {
				formatter.Error(ErrCodeStoreError, err.Error(), nil)
				return NewExitError(ExitFailure, "list failed")
			}

			if rootOpts.Format == "json" {
				rows := make([]map[string]any, 0, len(profiles))
				for _, p := range profiles {
					rows = append(rows, map[string]any{
						"name":        p.Name,
						"abilityId":   p.AbilityID,
						"fingerprint": p.Fingerprint,
						"entries":     len(p.Document.Modifications),
						"updatedAt":   p.UpdatedAt,
					})
				}
				return formatter.Success(rows)
			}
			for _, p := range profiles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tability %d\t%d entries\t%s\n",
					p.Name, p.AbilityID, len(p.Document.Modifications), p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newProfileDeleteCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a saved profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			store, err := openStore(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, profile.ErrNotFound) {
					formatter.Error(ErrCodeNotFound, err.Error(), nil)
					return NewExitError(ExitFailure, "unknown profile")
				}
				formatter.Error(ErrCodeStoreError, err.Error(), nil)
				return NewExitError(ExitFailure, "delete failed")
			}
			return formatter.Success(map[string]any{"deleted": args[0]})
		},
	}
}

func formatDocument(doc *mod.Document) (string, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
