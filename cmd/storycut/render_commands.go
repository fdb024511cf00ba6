package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storycut/internal/api"
)

func newRenderCommand(cli *cliContext) *cobra.Command {
	var ratios []string
	var captions, normalise bool
	cmd := &cobra.Command{
		Use:   "render <plan-id>",
		Short: "Apply a plan and render one output per aspect ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.Render(cmd.Context(), args[0], api.RenderRequest{
				AspectRatios:   ratios,
				Captions:       captions,
				NormaliseAudio: normalise,
			})
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			fmt.Printf("render job %s queued for %d aspect ratio(s)\n", resp.RenderJobID, len(ratios))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&ratios, "aspect", []string{"16:9"}, "output aspect ratio as W:H (repeatable)")
	cmd.Flags().BoolVar(&captions, "captions", false, "burn transcript captions into the output")
	cmd.Flags().BoolVar(&normalise, "normalise-audio", false, "loudness normalise the output audio")
	cmd.AddCommand(newRenderShowCommand(cli))
	return cmd
}

func newRenderShowCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <render-id>",
		Short: "Show one render's status and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := cli.client.GetRender(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(view)
			}
			t := newTable("Field", "Value")
			t.AppendRow(row("Render", view.RenderID))
			t.AppendRow(row("Plan", view.PlanID))
			t.AppendRow(row("Aspect", view.AspectRatio))
			t.AppendRow(row("Status", view.Status))
			if view.OutputURI != "" {
				t.AppendRow(row("Output", view.OutputURI))
				t.AppendRow(row("Duration", seconds(view.DurationSeconds)))
			}
			if view.Error != nil {
				t.AppendRow(row("Error", fmt.Sprintf("%s: %s", view.Error.Code, view.Error.Message)))
			}
			t.Render()
			return nil
		},
	}
}
