package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/correlate"
	"github.com/roach88/chronicle/internal/replay"
	"github.com/roach88/chronicle/internal/timeline"
)

// AnalyzeOptions holds flags shared by the timeline and anomalies commands.
type AnalyzeOptions struct {
	*RootOptions
	Selector SelectorOptions
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Lay out events by workflow, issue and user",
		Long: `Group a selection of events into lanes by workflow, issue, user or the
general lane, and position each event within the overall time window.

Examples:
  chronicle timeline --db ./chronicle.db --until 2025-01-02T00:00:00Z
  chronicle timeline --file audit.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeline(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)

	return cmd
}

func runTimeline(opts *AnalyzeOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	req, err := opts.Selector.request(replay.ModeBatch)
	if err != nil {
		return commandError(out, "invalid selection", err)
	}
	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	tl, err := eng.Timeline(ctx, req)
	if err != nil {
		return commandError(out, "timeline failed", err)
	}
	return out.Emit(tl, func(w io.Writer) error {
		return timeline.Render(w, tl)
	})
}

// NewAnomaliesCommand creates the anomalies command.
func NewAnomaliesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Detect timing, frequency, sequence and content anomalies",
		Long: `Run the anomaly detectors over a selection of events and list the
findings, most severe first.

Examples:
  chronicle anomalies --db ./chronicle.db --until 2025-01-02T00:00:00Z
  chronicle anomalies --db ./chronicle.db --correlation-id issue:I1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnomalies(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)

	return cmd
}

func runAnomalies(opts *AnalyzeOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	req, err := opts.Selector.request(replay.ModeBatch)
	if err != nil {
		return commandError(out, "invalid selection", err)
	}
	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := eng.DetectAnomalies(ctx, req)
	if err != nil {
		return commandError(out, "anomaly detection failed", err)
	}
	return out.Emit(rep, func(w io.Writer) error {
		fmt.Fprintf(w, "%d anomal(ies) in %d event(s)\n", len(rep.Anomalies), rep.EventsAnalyzed)
		for _, a := range rep.Anomalies {
			fmt.Fprintf(w, "  [%s] %s: %s\n", a.Severity, a.Kind, a.Description)
		}
		if rep.Truncated {
			fmt.Fprintln(w, "Analysis stopped early; results are partial.")
		}
		return nil
	})
}

// CorrelateOptions holds flags for the correlate command.
type CorrelateOptions struct {
	*RootOptions
	MaxDuration time.Duration
}

// NewCorrelateCommand creates the correlate command.
func NewCorrelateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CorrelateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "correlate <event-id>",
		Short: "Find events related to a root event",
		Long: `Relate a stored event to others sharing its workflow, issue or user, and
to performance signals close to it in time. Each relationship is scored and
annotated with patterns, insights and recommendations.

Exit codes:
  0 - Correlations computed
  2 - Command error (unknown event, store unavailable)

Examples:
  chronicle correlate --db ./chronicle.db 0191d2c4-8a5e-7b3c-9f1a-2d4e6f8a0b1c
  chronicle correlate --db ./chronicle.db --max-duration 2s evt-42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorrelate(opts, cmd, args[0])
		},
	}

	addStoreFlag(cmd, rootOpts)
	cmd.Flags().DurationVar(&opts.MaxDuration, "max-duration", 0, "stop correlating after this long (default from config)")

	return cmd
}

func runCorrelate(opts *CorrelateOptions, cmd *cobra.Command, rootID string) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	if opts.MaxDuration < 0 {
		return NewExitError(ExitCommandError, "--max-duration must not be negative")
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	cs, err := eng.CorrelateWithin(ctx, rootID, opts.MaxDuration)
	if err != nil {
		return commandError(out, "correlation failed", err)
	}
	return out.Emit(cs, func(w io.Writer) error {
		writeCorrelationsText(w, rootID, cs, opts.Verbose)
		return nil
	})
}

func writeCorrelationsText(w io.Writer, rootID string, cs []correlate.Correlation, verbose bool) {
	fmt.Fprintf(w, "%d correlation(s) for %s\n", len(cs), rootID)
	for _, c := range cs {
		fmt.Fprintf(w, "\n[%s] %s: %d related (confidence %.2f)", c.Dimension, c.Key, c.Total, c.Confidence)
		if c.Truncated {
			fmt.Fprint(w, ", truncated")
		}
		fmt.Fprintln(w)
		for _, p := range c.Analysis.Patterns {
			fmt.Fprintf(w, "  pattern: %s\n", p)
		}
		for _, i := range c.Analysis.Insights {
			fmt.Fprintf(w, "  insight: %s\n", i)
		}
		for _, r := range c.Analysis.Recommendations {
			fmt.Fprintf(w, "  recommendation: %s\n", r)
		}
		if verbose {
			for _, r := range c.Related {
				fmt.Fprintf(w, "  - %s %s %s\n", r.ID, r.Type, r.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
			}
		}
	}
}
