package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/event"
)

// StreamsOptions holds flags for the streams command.
type StreamsOptions struct {
	*RootOptions
	Kind string
}

// NewStreamsCommand creates the streams command.
func NewStreamsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List the streams in the event store",
		Long: `List every stream of one kind with its event count, time span and last
sequence number.

Examples:
  chronicle streams --db ./chronicle.db
  chronicle streams --db ./chronicle.db --kind issue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreams(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	cmd.Flags().StringVar(&opts.Kind, "kind", string(event.StreamWorkflow), "stream kind (workflow|issue|user|session)")

	return cmd
}

func runStreams(opts *StreamsOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	kind := event.StreamKind(opts.Kind)
	switch kind {
	case event.StreamWorkflow, event.StreamIssue, event.StreamUser, event.StreamSession:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown stream kind %q", opts.Kind))
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	infos, err := eng.Streams(ctx, kind)
	if err != nil {
		return commandError(out, "failed to list streams", err)
	}
	return out.Emit(infos, func(w io.Writer) error {
		if len(infos) == 0 {
			fmt.Fprintf(w, "No %s streams found.\n", kind)
			return nil
		}
		fmt.Fprintf(w, "%d %s stream(s)\n", len(infos), kind)
		for _, s := range infos {
			fmt.Fprintf(w, "  %s  %d event(s)  %s .. %s  last seq %d\n",
				s.Key, s.EventCount, event.FormatTimestamp(s.First), event.FormatTimestamp(s.Last), s.LastSeq)
		}
		return nil
	})
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state <kind:id>",
		Short: "Show the current reconstructed state of one stream",
		Long: `Reconstruct the state of one stream from its full history, resuming from
the nearest cached snapshot when one is available.

Examples:
  chronicle state --db ./chronicle.db workflow:W1
  chronicle state --db ./chronicle.db issue:I1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, cmd, args[0])
		},
	}

	addStoreFlag(cmd, rootOpts)

	return cmd
}

func runState(opts *StreamsOptions, cmd *cobra.Command, arg string) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	key, err := event.ParseStreamKey(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream key", err)
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	ss, err := eng.StreamState(ctx, key)
	if err != nil {
		return commandError(out, "failed to reconstruct stream", err)
	}
	return out.Emit(ss, func(w io.Writer) error {
		fmt.Fprintf(w, "%s: %d event(s), %d error(s)\n", ss.Key, ss.Events, len(ss.Errors))
		fmt.Fprintf(w, "Fingerprint: %s\n", ss.Fingerprint)
		b, err := json.MarshalIndent(ss.State, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
		return nil
	})
}
