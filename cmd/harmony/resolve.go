package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"basegraph.app/harmony/internal/artifact"
	"basegraph.app/harmony/internal/planner"
)

func newResolveCmd(c *cli) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Resolve a spec file into execution waves",
		Long: `Validate a YAML or JSON spec file and print its execution waves, roots,
leaves and orphans. Cycles, dangling references and duplicate ids are
reported as errors.

Formats: text (default), json, mermaid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := artifact.CheckLimits(g, artifact.Limits{MaxArtifacts: c.cfg.Limits.MaxArtifacts, MaxDepth: c.cfg.Limits.MaxDepth}); err != nil && !c.cfg.Limits.AllowExplosion {
				return err
			}
			return printResolution(cmd.OutOrStdout(), g, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or mermaid")
	return cmd
}

func newScoreCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "score <file>",
		Short: "Score the structure of a spec file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := c.cfg.Planner.Weights
			scorer := planner.NewScorer(planner.Weights{
				Parallelism: w.Parallelism,
				Balance:     w.Balance,
				Depth:       w.Depth,
				Conflicts:   w.Conflicts,
			})
			m := scorer.Score(g)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			printMetrics(cmd.OutOrStdout(), m)
			weakness, ok := planner.IdentifyWeakness(m, planner.Thresholds{
				MinParallelism: c.cfg.Planner.MinParallelism,
				MaxBalance:     c.cfg.Planner.MaxBalance,
			})
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "\nweakest metric: %s\n", weakness)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print metrics as JSON")
	return cmd
}

func loadGraph(ctx context.Context, path string) (*artifact.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := artifact.LoadSpecs(f)
	if err != nil {
		return nil, err
	}
	if len(doc.Artifacts) == 0 {
		return nil, fmt.Errorf("%s contains no artifacts", path)
	}
	return artifact.FromDocument(ctx, doc)
}

func printResolution(out io.Writer, g *artifact.Graph, format string) error {
	switch format {
	case "json":
		return writeJSON(out, map[string]any{
			"waves":          g.Waves(),
			"roots":          g.Roots(),
			"leaves":         g.Leaves(),
			"orphans":        g.Orphans(),
			"ambiguous_root": g.AmbiguousRoot(),
			"depth":          g.Depth(),
			"width":          g.Width(),
		})
	case "mermaid":
		_, err := io.WriteString(out, g.Mermaid())
		return err
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, wave := range g.Waves() {
		fmt.Fprintf(tw, "wave %d\t%s\n", i, strings.Join(wave, ", "))
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "\nartifacts: %d  depth: %d  width: %d\n", g.Len(), g.Depth(), g.Width())
	fmt.Fprintf(out, "roots:     %s\n", list(g.Roots()))
	fmt.Fprintf(out, "leaves:    %s\n", list(g.Leaves()))
	fmt.Fprintf(out, "orphans:   %s\n", list(g.Orphans()))
	if g.AmbiguousRoot() {
		fmt.Fprintln(out, "warning: more than one root; the goal may be split across unrelated outputs")
	}
	return nil
}

func printMetrics(out io.Writer, m planner.Metrics) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "score\t%.2f\n", m.Score)
	fmt.Fprintf(tw, "artifacts\t%d\n", m.ArtifactCount)
	fmt.Fprintf(tw, "depth\t%d\n", m.Depth)
	fmt.Fprintf(tw, "width\t%d\n", m.Width)
	fmt.Fprintf(tw, "leaves\t%d\n", m.LeafCount)
	fmt.Fprintf(tw, "waves\t%d\n", m.EstimatedWaves)
	fmt.Fprintf(tw, "parallelism\t%.3f\n", m.ParallelismFactor)
	fmt.Fprintf(tw, "balance\t%.3f\n", m.BalanceFactor)
	fmt.Fprintf(tw, "file conflicts\t%d\n", m.FileConflicts)
	_ = tw.Flush()
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
