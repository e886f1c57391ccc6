package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/replay"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Selector SelectorOptions
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay twice and verify determinism",
		Long: `Replay a selection twice and compare the state fingerprint after every
step. Any difference means a transition depends on something other than the
state and the event.

Exit codes:
  0 - Replays are identical
  1 - Determinism verification failed
  2 - Command error (invalid selection, store unavailable)

Examples:
  chronicle verify --db ./chronicle.db --correlation-id W1
  chronicle verify --db ./chronicle.db --until 2025-02-01T00:00:00Z --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
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

	rep, err := eng.Verify(ctx, req)
	if engine.IsNonDeterministic(err) {
		return out.Fail(ExitFailure, string(engine.ErrCodeNonDeterministic), "determinism verification failed", rep,
			func(w io.Writer) error {
				fmt.Fprintf(w, "✗ Determinism verification failed: %v\n", err)
				return nil
			})
	}
	if err != nil {
		return commandError(out, "verify failed", err)
	}

	return out.Emit(rep, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ %d step(s) verified deterministic\n", rep.Steps)
		if rep.FinalFingerprint != "" {
			fmt.Fprintf(w, "Final fingerprint: %s\n", rep.FinalFingerprint)
		}
		return nil
	})
}
