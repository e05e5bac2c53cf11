package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/output"
)

// ANSI color constants.
const (
	colorReset = "\033[0m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

// progress prints one line per replayed event to stderr.
type progress struct {
	out   io.Writer
	color bool
	quiet bool
}

func newProgress(out io.Writer, quiet bool) *progress {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progress{out: out, color: color, quiet: quiet}
}

func (p *progress) colorize(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + colorReset
}

func (p *progress) pass(line int, hook, detail string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "  %s %s %s\n", p.colorize(colorGreen, "✓"), p.colorize(colorDim, fmt.Sprintf("%4d", line)), hook)
	if detail != "" {
		fmt.Fprintf(p.out, "         %s\n", p.colorize(colorDim, detail))
	}
}

func (p *progress) fail(line int, hook string) {
	fmt.Fprintf(p.out, "  %s %s %s\n", p.colorize(colorRed, "✗"), p.colorize(colorDim, fmt.Sprintf("%4d", line)), p.colorize(colorRed, hook))
}

// replayResult is the outcome of one replayed line.
type replayResult struct {
	Line     int             `json:"line"`
	Hook     string          `json:"hook,omitempty"`
	ExitCode int             `json:"exit_code"`
	Response json.RawMessage `json:"response,omitempty"`
}

type replaySummary struct {
	Source  string         `json:"source"`
	Events  int            `json:"events"`
	Failed  int            `json:"failed"`
	Stopped bool           `json:"stopped,omitempty"`
	Results []replayResult `json:"results"`
}

// NewReplayCmd creates the replay command.
func NewReplayCmd() *cobra.Command {
	var (
		stopOnError bool
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "replay [file.jsonl]",
		Short: "Feed recorded hook events through the pipeline, one invocation per line",
		Long: `Reads newline-delimited hook events (a file, or stdin when omitted or "-")
and handles each exactly as 'hooktrace hook' would: its own correlation,
its own response and its own flush. Useful to backfill traces from captured
payloads or to reproduce a conversation against a test backend.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			in := cmd.InOrStdin()
			if src != "-" {
				f, err := os.Open(src)
				if err != nil {
					return cmdErr(fmt.Errorf("open replay source: %w", err))
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			runner := hookRunnerFromSettings(slog.Default())
			summary, err := replay(cmd.Context(), runner, in, newProgress(cmd.ErrOrStderr(), quiet), stopOnError)
			if err != nil {
				return cmdErr(err)
			}
			summary.Source = src
			if err := output.PrintSuccess(summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Stop at the first event that falls back")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Only report failed events on stderr")
	return withEffects(cmd, effectReadsStdin, effectWritesStore, effectCallsBackend)
}

func replay(ctx context.Context, r *hookRunner, in io.Reader, p *progress, stopOnError bool) (replaySummary, error) {
	summary := replaySummary{Results: []replayResult{}}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxHookStdinBytes+1)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var head struct {
			HookEventName string `json:"hook_event_name"`
		}
		_ = json.Unmarshal(raw, &head)

		var resp bytes.Buffer
		code := runHookGuarded(ctx, r, bytes.NewReader(raw), &resp)
		res := replayResult{Line: line, Hook: head.HookEventName, ExitCode: code}
		if out := bytes.TrimSpace(resp.Bytes()); len(out) > 0 {
			res.Response = json.RawMessage(append([]byte(nil), out...))
		}
		summary.Events++
		summary.Results = append(summary.Results, res)

		if code != 0 {
			summary.Failed++
			p.fail(line, nameOrUnknown(head.HookEventName))
			if stopOnError {
				summary.Stopped = true
				break
			}
			continue
		}
		p.pass(line, nameOrUnknown(head.HookEventName), string(res.Response))
	}
	if err := sc.Err(); err != nil {
		return summary, fmt.Errorf("read replay line %d: %w", line+1, err)
	}
	return summary, nil
}

func nameOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no hook_event_name)"
	}
	return s
}
