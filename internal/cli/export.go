package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/replay"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Selector     SelectorOptions
	As           string
	Output       string
	Correlations string
}

// ExportSummary reports a file export.
type ExportSummary struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a replay result or correlations as JSON or CSV",
		Long: `Replay a selection (or correlate one event with --correlations) and write
the result in an exchange format. JSON exports are lossless and can be read
back; CSV has one row per step or per related event.

Examples:
  chronicle export --db ./chronicle.db --correlation-id W1 --as csv -o w1.csv
  chronicle export --db ./chronicle.db --correlations evt-42 --as json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)
	cmd.Flags().StringVar(&opts.As, "as", string(replay.FormatJSON), "export format (json|csv)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&opts.Correlations, "correlations", "", "export the correlations of this event id")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	format, err := replay.ParseFormat(opts.As)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export format", err)
	}

	var req replay.Request
	if opts.Correlations == "" {
		if req, err = opts.Selector.request(replay.ModeBatch); err != nil {
			return commandError(out, "invalid replay request", err)
		}
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	var data []byte
	if opts.Correlations != "" {
		data, err = eng.ExportCorrelations(ctx, opts.Correlations, format)
	} else {
		data, err = eng.Export(ctx, req, format)
	}
	if err != nil {
		return commandError(out, "export failed", err)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	sum := ExportSummary{Path: opts.Output, Format: string(format), Bytes: len(data)}
	return out.Emit(sum, func(w io.Writer) error {
		fmt.Fprintf(w, "Wrote %d bytes of %s to %s\n", sum.Bytes, sum.Format, sum.Path)
		return nil
	})
}
