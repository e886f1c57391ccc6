package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/replay"
)

// StepOptions holds flags for the step command.
type StepOptions struct {
	*RootOptions
	Selector SelectorOptions
}

// NewStepCommand creates the interactive step command.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Step through a replay interactively",
		Long: `Start an interactive replay and drive it with commands read from stdin,
one per line:

  step [n]      fold the next n events (default 1)
  resume        run to the end or the next halt
  pause         request a pause
  cancel        stop the replay for good
  jump <index>  move so that the next event folded is <index>
  inspect       show the session state
  state [path]  print the reconstructed state, or one dotted path of it
  quit          stop reading and print the result

Reconstruction failures pause the session (policy halt) unless --policy skip
is given. In JSON mode every command answers with one JSON line.

Examples:
  printf 'step 3\nstate workflows.W1\njump 1\nresume\n' | chronicle step --db ./chronicle.db --correlation-id W1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(opts, cmd)
		},
	}

	addStoreFlag(cmd, rootOpts)
	opts.Selector.bind(cmd)

	return cmd
}

// stepReply is the JSON answer to one command.
type stepReply struct {
	Command string        `json:"command"`
	State   *replay.State `json:"state,omitempty"`
	Value   any           `json:"value,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func runStep(opts *StepOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	req, err := opts.Selector.request(replay.ModeInteractive)
	if err != nil {
		return commandError(out, "invalid replay request", err)
	}

	eng, closeFn, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := eng.Start(ctx, req)
	if err != nil {
		return commandError(out, "replay failed", err)
	}

	d := &stepDriver{sess: sess, json: opts.Format == "json", w: cmd.OutOrStdout()}
	d.reply("start", sess.Inspect(), nil, nil)

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if !d.exec(ctx, fields) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read commands", err)
	}

	res := sess.Result()
	return out.Emit(res, func(w io.Writer) error {
		fmt.Fprintln(w)
		writeResultText(w, res, false)
		return nil
	})
}

type stepDriver struct {
	sess *replay.Session
	json bool
	w    io.Writer
}

// exec runs one command line. It returns false on quit.
func (d *stepDriver) exec(ctx context.Context, fields []string) bool {
	name, args := fields[0], fields[1:]
	switch name {
	case "step", "s", "next", "n":
		count := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				d.reply(name, replay.State{}, nil, fmt.Errorf("step count must be a positive integer"))
				return true
			}
			count = n
		}
		st, err := d.sess.Step(ctx, count)
		d.reply(name, st, nil, err)
	case "resume", "continue", "c":
		st, err := d.sess.Resume(ctx)
		d.reply(name, st, nil, err)
	case "pause":
		err := d.sess.Pause()
		d.reply(name, d.sess.Inspect(), nil, err)
	case "cancel":
		d.reply(name, d.sess.Cancel(), nil, nil)
	case "jump", "j":
		if len(args) != 1 {
			d.reply(name, replay.State{}, nil, errors.New("usage: jump <index>"))
			return true
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			d.reply(name, replay.State{}, nil, fmt.Errorf("invalid index %q", args[0]))
			return true
		}
		st, err := d.sess.Jump(ctx, idx)
		d.reply(name, st, nil, err)
	case "inspect", "i":
		d.reply(name, d.sess.Inspect(), nil, nil)
	case "state":
		st := d.sess.Inspect()
		var val any = st.Current
		if len(args) > 0 {
			v, ok := st.Current.Lookup(args[0])
			if !ok {
				d.reply(name, replay.State{}, nil, fmt.Errorf("no value at %s", args[0]))
				return true
			}
			val = v
		}
		d.reply(name, replay.State{}, val, nil)
	case "quit", "q", "exit":
		return false
	default:
		d.reply(name, replay.State{}, nil, fmt.Errorf("unknown command %q", name))
	}
	return true
}

func (d *stepDriver) reply(command string, st replay.State, value any, err error) {
	if d.json {
		r := stepReply{Command: command, Value: value}
		if st.Status != "" {
			r.State = &st
		}
		if err != nil {
			r.Error = err.Error()
		}
		_ = json.NewEncoder(d.w).Encode(r)
		return
	}

	if err != nil {
		fmt.Fprintf(d.w, "error: %v\n", err)
		if st.Status == "" {
			return
		}
	}
	if value != nil {
		b, merr := json.MarshalIndent(value, "", "  ")
		if merr != nil {
			fmt.Fprintf(d.w, "error: %v\n", merr)
			return
		}
		fmt.Fprintln(d.w, string(b))
		return
	}
	if st.Status != "" {
		writeStateText(d.w, st)
	}
}

func writeStateText(w io.Writer, st replay.State) {
	fmt.Fprintf(w, "[%s] %d/%d", st.Status, st.Cursor, st.Total)
	if st.LastStep != nil {
		ls := st.LastStep
		fmt.Fprintf(w, " #%d %s %s %s", ls.Index, ls.Event.ID, ls.Event.Type, changeSummary(ls.Diff))
		if ls.Skipped {
			fmt.Fprint(w, " (skipped)")
		}
	}
	switch {
	case st.Halted:
		fmt.Fprint(w, " halted")
	case st.Cancelled:
		fmt.Fprint(w, " cancelled")
	case st.Truncated:
		fmt.Fprint(w, " truncated")
	}
	fmt.Fprintln(w)
}
