package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/fixture"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Validate    bool
	StdinFormat string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Append audit events to the event store",
		Long: `Normalize audit events from fixture files and append them to the store.

Files may be YAML or JSON documents or JSON Lines (.jsonl). Use "-" to read
from stdin. Events without an id are assigned a UUIDv7. Re-ingesting an
identical event is a no-op; a different event under an existing id is
rejected.

Exit codes:
  0 - All events stored
  1 - Some events were rejected
  2 - Command error (unreadable file, store unavailable)

Examples:
  chronicle ingest --db ./chronicle.db audit.yaml
  cat audit.jsonl | chronicle ingest --db ./chronicle.db --stdin-format jsonl -`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd, args)
		},
	}

	addStoreFlag(cmd, rootOpts)
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "check events against the JSON Schema first")
	cmd.Flags().StringVar(&opts.StdinFormat, "stdin-format", string(fixture.FormatYAML), "format of stdin input (yaml|jsonl)")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	raws, err := readEvents(cmd.InOrStdin(), fixture.Format(opts.StdinFormat), args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	out.VerboseLog("read %d events from %d input(s)", len(raws), len(args))

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := eng.Ingest(ctx, raws, engine.IngestOptions{Validate: opts.Validate})
	if err != nil {
		return commandError(out, "ingest failed", err)
	}

	text := func(w io.Writer) error {
		fmt.Fprintf(w, "Ingested %d event(s): %d appended, %d duplicate, %d rejected (last seq %d)\n",
			rep.Received, rep.Appended, rep.Duplicates, len(rep.Rejected), rep.LastSeq)
		for _, r := range rep.Rejected {
			fmt.Fprintf(w, "  ✗ #%d %s [%s] %s\n", r.Index, r.EventID, r.Code, r.Message)
		}
		return nil
	}
	if len(rep.Rejected) > 0 {
		return out.Fail(ExitFailure, "REJECTED_EVENTS", fmt.Sprintf("%d event(s) rejected", len(rep.Rejected)), rep, text)
	}
	return out.Emit(rep, text)
}

func readEvents(stdin io.Reader, stdinFormat fixture.Format, paths []string) ([]event.Raw, error) {
	out := []event.Raw{}
	for _, p := range paths {
		if p == "-" {
			f, err := fixture.Decode(stdin, stdinFormat)
			if err != nil {
				return nil, fmt.Errorf("stdin: %w", err)
			}
			out = append(out, f.Events...)
			continue
		}
		f, err := fixture.Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Events...)
	}
	return out, nil
}
