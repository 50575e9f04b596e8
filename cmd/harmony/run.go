package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"basegraph.app/harmony/internal/discovery"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/service"
	"basegraph.app/harmony/internal/store"
)

type runOptions struct {
	summary     string
	constraints []string
	output      string
	asJSON      bool
	quiet       bool
	planOnly    bool
}

func newPlanCmd(c *cli) *cobra.Command {
	opts := &runOptions{planOnly: true}
	cmd := &cobra.Command{
		Use:   "plan <goal>",
		Short: "Generate, score and refine a plan for a goal without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, strings.Join(args, " "), opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newRunCmd(c *cli) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Plan a goal and materialize every artifact of the winning graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, strings.Join(args, " "), opts)
		},
	}
	addRunFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "directory for materialized artifacts (default ARTIFACT_OUTPUT_DIR)")
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.summary, "summary", "", "background for the planner")
	cmd.Flags().StringArrayVar(&opts.constraints, "constraint", nil, "constraint the plan must respect (repeatable)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the run report as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress to stderr")
}

func (c *cli) run(cmd *cobra.Command, goal string, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, verifier, err := service.NewLLMCapabilities(c.cfg)
	if err != nil {
		return err
	}
	planner, engine, err := service.NewPipeline(c.cfg, provider, verifier)
	if err != nil {
		return err
	}

	sink, _ := service.NewEventSink(nil, c.cfg.Redis, nil)
	if !opts.quiet {
		sink = events.Multi(sink, progressSink(cmd.ErrOrStderr()))
	}

	deps := service.RunServiceDeps{Planner: planner, Executor: engine, Sink: sink}
	dir := opts.output
	if dir == "" {
		dir = c.cfg.Execution.OutputDir
	}
	if dir != "" && !opts.planOnly {
		contents, err := store.NewLocalContentStore(dir)
		if err != nil {
			return err
		}
		deps.Contents = contents
	}

	report, runErr := service.NewRunService(deps).Run(ctx, service.RunRequest{
		Goal:     goal,
		Context:  discovery.PlanContext{Summary: opts.summary, Constraints: opts.constraints},
		PlanOnly: opts.planOnly,
	})
	if report == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if runErr != nil {
		return runErr
	}
	if report.Execution != nil && (len(report.Execution.Failed) > 0 || len(report.Execution.Blocked) > 0) {
		return errors.New("some artifacts failed")
	}
	return nil
}

// progressSink prints one line per lifecycle event.
func progressSink(w io.Writer) events.Sink {
	return events.SinkFunc(func(_ context.Context, e events.Event) error {
		f := e.Fields
		var line string
		switch e.Type {
		case events.PlanCandidatesStart:
			line = fmt.Sprintf("generating %v candidates", f["total_candidates"])
		case events.PlanCandidateScored:
			line = fmt.Sprintf("candidate %v scored %v", f["candidate_index"], f["score"])
		case events.PlanWinner:
			line = fmt.Sprintf("selected candidate %v: %v", f["selected_candidate"], f["selection_reason"])
		case events.PlanRefineAttempt:
			line = fmt.Sprintf("refining %v", f["weakness"])
		case events.WaveStart:
			line = fmt.Sprintf("wave %v: %v", f["wave"], f["artifacts"])
		case events.ArtifactSucceeded:
			line = fmt.Sprintf("  ok      %v", f["artifact_id"])
		case events.ArtifactFailed:
			line = fmt.Sprintf("  failed  %v: %v", f["artifact_id"], f["reason"])
		case events.ArtifactBlocked:
			line = fmt.Sprintf("  blocked %v (by %v)", f["artifact_id"], f["blocked_by"])
		case events.ExpansionRound:
			line = fmt.Sprintf("expansion round %v: %v new", f["round"], f["new_artifacts"])
		default:
			return nil
		}
		_, err := fmt.Fprintln(w, line)
		return err
	})
}

func printReport(out io.Writer, r *service.RunReport) {
	fmt.Fprintf(out, "run %d: %s (%d ms)\n", r.RunID, r.Status, r.DurationMS)
	if r.Error != "" {
		fmt.Fprintf(out, "error: %s\n", r.Error)
	}

	if p := r.Plan; p != nil {
		fmt.Fprintf(out, "\nplan: candidate %d (%s), score %.2f", p.Winner, p.Variance, p.Metrics.Score)
		if len(p.Rounds) > 0 {
			fmt.Fprintf(out, ", %+.2f after %d refinement rounds", p.ScoreImprovement, len(p.Rounds))
		}
		fmt.Fprintln(out)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tvariance\tscore\tartifacts\tdepth\tnote")
		for _, s := range p.Candidates {
			mark := ""
			if s.Selected {
				mark = "selected"
			}
			if s.Metrics == nil {
				fmt.Fprintf(tw, "  %d\t%s\t-\t-\t-\t%s\n", s.Index, s.Variance, s.Error)
				continue
			}
			fmt.Fprintf(tw, "  %d\t%s\t%.2f\t%d\t%d\t%s\n", s.Index, s.Variance, s.Metrics.Score, s.Metrics.ArtifactCount, s.Metrics.Depth, mark)
		}
		_ = tw.Flush()

		fmt.Fprintln(out)
		for i, wave := range p.Waves {
			fmt.Fprintf(out, "  wave %d: %s\n", i, strings.Join(wave, ", "))
		}
	}

	if e := r.Execution; e != nil {
		fmt.Fprintf(out, "\nexecution: %d succeeded, %d failed, %d blocked, %d pending (success %.0f%%, verified %.0f%%)\n",
			len(e.Succeeded), len(e.Failed), len(e.Blocked), len(e.Pending), e.SuccessRate*100, e.VerificationRate*100)
		ids := make([]string, 0, len(e.Failed))
		for id := range e.Failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  failed %s: %s\n", id, e.Failed[id])
		}
		for _, id := range e.Blocked {
			fmt.Fprintf(out, "  blocked %s\n", id)
		}
	}

	for _, ref := range r.Contents {
		fmt.Fprintf(out, "wrote %s (%d bytes)\n", ref.Path, ref.Size)
	}
}
