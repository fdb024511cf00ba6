package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storycut/internal/api"
	"storycut/internal/media"
)

func newPlanCommand(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build and inspect edit plans",
	}
	cmd.AddCommand(
		newPlanHeuristicCommand(cli),
		newPlanStoryCommand(cli),
		newPlanShowCommand(cli),
	)
	return cmd
}

func newPlanHeuristicCommand(cli *cliContext) *cobra.Command {
	var candidate int
	var start, end float64
	cmd := &cobra.Command{
		Use:   "heuristic <media-id>",
		Short: "Build a plan from a clip candidate or an explicit window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.HeuristicPlanRequest{Start: start, End: end}
			if cmd.Flags().Changed("candidate") {
				req.CandidateIndex = &candidate
			}
			plan, err := cli.client.HeuristicPlan(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(plan)
			}
			printPlan(plan)
			return nil
		},
	}
	cmd.Flags().IntVar(&candidate, "candidate", 0, "clip candidate rank to use")
	cmd.Flags().Float64Var(&start, "start", 0, "window start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "window end in seconds")
	return cmd
}

func newPlanStoryCommand(cli *cliContext) *cobra.Command {
	var brief media.StoryBrief
	cmd := &cobra.Command{
		Use:   "story <media-id>",
		Short: "Queue an LLM-driven story plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.StoryPlan(cmd.Context(), args[0], brief)
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			fmt.Printf("planning job %s queued; watch it with: storycut jobs %s\n", resp.PlanJobID, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&brief.StoryPrompt, "prompt", "", "what story the cut should tell (required)")
	cmd.Flags().StringVar(&brief.Summary, "summary", "", "one-line summary of the footage")
	cmd.Flags().StringVar(&brief.TargetAudience, "audience", "", "who the cut is for")
	cmd.Flags().StringVar(&brief.Tone, "tone", "", "desired tone")
	cmd.Flags().StringVar(&brief.KeyMessage, "message", "", "the one thing the viewer should take away")
	cmd.Flags().StringArrayVar(&brief.ArcDescriptors, "arc", nil, "story arc beat (repeatable)")
	cmd.Flags().StringArrayVar(&brief.StylePreferences, "style", nil, "style preference (repeatable)")
	cmd.Flags().Float64Var(&brief.DesiredLengthPct, "length-pct", 0.2, "target length as a fraction of the source")
	cmd.Flags().BoolVar(&brief.StrictCoverage, "strict", false, "reject plans outside the length tolerance")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newPlanShowCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a plan's EDL and advisory output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := cli.client.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(plan)
			}
			printPlan(plan)
			return nil
		},
	}
}

func printPlan(plan api.PlanView) {
	fmt.Printf("plan %s (%s, %s) keeps %s\n", plan.PlanID, plan.Mode, plan.Status, seconds(plan.TotalKeep))
	if plan.StoryArc != nil {
		fmt.Printf("arc: hook %s, climax %s, resolution %s\n",
			seconds(plan.StoryArc.HookT), seconds(plan.StoryArc.ClimaxT), seconds(plan.StoryArc.ResolutionT))
	}
	t := newTable("#", "Kind", "Start", "End", "Reason")
	for i, seg := range plan.EDL {
		t.AppendRow(row(i, string(seg.Kind), seconds(seg.Start), seconds(seg.End), orDash(seg.Reason)))
	}
	t.Render()
	for _, warning := range plan.Warnings {
		fmt.Println("warning:", warning)
	}
	for _, rec := range plan.Recommendations {
		fmt.Println("note:", rec.Message)
	}
}
