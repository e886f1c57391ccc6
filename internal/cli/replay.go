package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/diff"
	"github.com/roach88/chronicle/internal/replay"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Selector  SelectorOptions
	ShowSteps bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct state by replaying audit events",
		Long: `Replay a selection of audit events in store order and report the
reconstructed state after each one.

Select events with exactly one of --correlation-id, --until, --events or
--file, then narrow them with the filter flags. Reconstruction failures are
skipped and itemized unless --policy halt is given.

Exit codes:
  0 - Replay completed
  1 - Replay halted on a reconstruction failure
  2 - Command error (invalid selection, store unavailable)

Examples:
  chronicle replay --db ./chronicle.db --correlation-id W1
  chronicle replay --db ./chronicle.db --until 2025-01-01T12:00:00Z --type 'workflow.*'
  chronicle replay --file audit.yaml --where 'event.severity == "error"' --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)
	cmd.Flags().BoolVar(&opts.ShowSteps, "steps", false, "list every step in text output")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	req, err := opts.Selector.request(replay.ModeBatch)
	if err != nil {
		return commandError(out, "invalid replay request", err)
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := eng.Replay(ctx, req)
	if err != nil {
		return commandError(out, "replay failed", err)
	}

	text := func(w io.Writer) error {
		writeResultText(w, res, opts.ShowSteps || opts.Verbose)
		return nil
	}
	if res.Summary.Halted {
		return out.Fail(ExitFailure, "HALTED", "replay halted on a reconstruction failure", res, text)
	}
	return out.Emit(res, text)
}

func writeResultText(w io.Writer, res replay.Result, steps bool) {
	s := res.Summary
	fmt.Fprintf(w, "Replay %s (%s): %d fetched, %d replayed, %d skipped, %d filtered, %d malformed\n",
		res.Status, res.Mode, s.TotalEvents, s.Processed, s.Skipped, s.Filtered, s.Malformed)
	var flags []string
	if s.Halted {
		flags = append(flags, "halted")
	}
	if s.Cancelled {
		flags = append(flags, "cancelled")
	}
	if s.Truncated {
		flags = append(flags, "truncated")
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "Stopped early: %s\n", strings.Join(flags, ", "))
	}
	if s.FinalFingerprint != "" {
		fmt.Fprintf(w, "Final fingerprint: %s\n", s.FinalFingerprint)
	}

	if steps && len(res.Steps) > 0 {
		fmt.Fprintln(w)
		for _, st := range res.Steps {
			writeStepText(w, st)
		}
	}

	if len(res.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  ✗ [%s] #%d %s: %s\n", e.Kind, e.EventIndex, e.EventID, e.Message)
		}
	}
}

func writeStepText(w io.Writer, st replay.Step) {
	mark := "✓"
	if st.Skipped {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s #%d %s %s %s\n", mark, st.Index, st.Event.ID, st.Event.Type, changeSummary(st.Diff))
}

func changeSummary(d diff.Diff) string {
	if d.IsEmpty() {
		return "(no change)"
	}
	changes := d.Changes()
	parts := make([]string, len(changes))
	for i, c := range changes {
		switch c.Op {
		case diff.OpAdded:
			parts[i] = "+" + c.Path
		case diff.OpModified:
			parts[i] = "~" + c.Path
		default:
			parts[i] = "-" + c.Path
		}
	}
	return strings.Join(parts, " ")
}
