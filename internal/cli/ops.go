package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <client-key>",
		Short: "Show what a client owns, reconciling with the gateway if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := NewRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			res := rt.engine.Restore(cmd.Context(), args[0])
			return NewOutputFormatter(opts.Format, cmd.OutOrStdout()).Result(args[0], res)
		},
	}
}

// NewGrantCommand creates the grant command.
func NewGrantCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <client-key> <pack>",
		Short: "Grant a pack without a purchase (support and migrations)",
		Long: `Grant a pack to a client key directly. The pack may be an individual
pack, "bundle", or "subscription". Granting twice is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := NewRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.engine.Grant(cmd.Context(), args[0], pack.ID(args[1])); err != nil {
				return err
			}
			res := rt.engine.Restore(cmd.Context(), args[0])
			return NewOutputFormatter(opts.Format, cmd.OutOrStdout()).Result(args[0], res)
		},
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record as a JSON mapping of client key to record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := NewRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			records := rt.engine.LoadRecords(cmd.Context())
			w := cmd.OutOrStdout()
			if opts.Output != "" && opts.Output != "-" {
				f, err := os.Create(opts.Output)
				if err != nil {
					return err
				}
				defer f.Close() //nolint:errcheck // Sync reports write errors
				if err := writeRecords(f, records); err != nil {
					return err
				}
				logger.Info("records exported", "count", len(records), "path", opts.Output)
				return f.Sync()
			}
			return writeRecords(w, records)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an exported mapping into the store",
		Long: `Merge records from a JSON mapping of client key to record into the
configured store. Existing records are unioned, never replaced; use this to
move between backends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := NewRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.SaveRecords(cmd.Context(), records); err != nil {
				return err
			}
			return NewOutputFormatter(opts.Format, cmd.OutOrStdout()).
				Line("imported", fmt.Sprintf("imported %d records", len(records)))
		},
	}
}

// NewIssueKeyCommand creates the issue-key command.
func NewIssueKeyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-key",
		Short: "Print a new server-generated client key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return NewOutputFormatter(opts.Format, cmd.OutOrStdout()).Line("clientKey", entitle.NewClientKey())
		},
	}
}

// writeRecords encodes the mapping; encoding/json sorts the keys.
func writeRecords(w io.Writer, records map[string]*entitlement.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func readRecords(path string) (map[string]*entitlement.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records := map[string]*entitlement.Record{}
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, r := range records {
		if r != nil {
			r.Normalize()
		}
	}
	return records, nil
}
