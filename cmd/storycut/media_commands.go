package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"storycut/internal/api"
)

func newAddCommand(cli *cliContext) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "add <source>",
		Short: "Register a source video and start probing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if !strings.Contains(source, "://") {
				abs, err := filepath.Abs(source)
				if err != nil {
					return err
				}
				source = abs
			}
			resp, err := cli.client.RegisterMedia(cmd.Context(), api.RegisterMediaRequest{
				SourceURI:   source,
				Title:       title,
				Description: description,
			})
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			fmt.Printf("registered %s (%s)\n", resp.MediaID, resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "human readable title")
	cmd.Flags().StringVar(&description, "description", "", "short description of the footage")
	return cmd
}

func newShowCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <media-id>",
		Short: "Show one media record with its technical metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := cli.client.GetMedia(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(view)
			}
			t := newTable("Field", "Value")
			t.AppendRow(row("Media", view.MediaID))
			t.AppendRow(row("Source", view.SourceURI))
			t.AppendRow(row("Title", orDash(view.Title)))
			t.AppendRow(row("Status", view.Status))
			if view.Tech != nil {
				t.AppendRow(row("Duration", seconds(view.Tech.Duration)))
				t.AppendRow(row("Video", fmt.Sprintf("%dx%d @ %.3g fps (%s)",
					view.Tech.Width, view.Tech.Height, view.Tech.FPS, view.Tech.VideoCodec)))
				audio := "none"
				if view.Tech.HasAudio {
					audio = view.Tech.AudioCodec
				}
				t.AppendRow(row("Audio", audio))
			}
			if view.Derived != nil {
				t.AppendRow(row("Audio blob", orDash(view.Derived.Audio)))
				t.AppendRow(row("Frames", orDash(view.Derived.Frames)))
			}
			t.Render()
			return nil
		},
	}
}

func newRemoveCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <media-id>",
		Short: "Soft delete a media record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.client.DeleteMedia(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !cli.jsonOut {
				fmt.Printf("deleted %s\n", args[0])
			}
			return nil
		},
	}
}

func newEnrichCommand(cli *cliContext) *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "enrich <media-id>",
		Short: "Queue enrichment jobs (all kinds unless --kind is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.Enrich(cmd.Context(), args[0], kinds)
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			t := newTable("Kind", "Job", "Note")
			for _, k := range resp.Kinds {
				note := "queued"
				if k.Skipped {
					note = "already done"
				}
				t.AppendRow(row(k.Kind, k.JobID, note))
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "enrichment kind to run (repeatable)")
	return cmd
}

func newJobsCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <media-id>",
		Short: "List the media's job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.Jobs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			t := newTable("Job", "Kind", "Status", "Attempt", "Error")
			for _, j := range resp.Jobs {
				errText := "-"
				if j.Error != nil {
					errText = j.Error.Code
				}
				t.AppendRow(row(j.JobID, j.Kind, j.Status, j.Attempt, errText))
			}
			t.Render()
			return nil
		},
	}
}

func newTranscriptCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <media-id>",
		Short: "Print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := cli.client.Transcript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(transcript)
			}
			for _, seg := range transcript.Segments {
				fmt.Printf("[%s - %s] %s\n", seconds(seg.Start), seconds(seg.End), seg.Text)
			}
			return nil
		},
	}
}

func newScenesCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes <media-id>",
		Short: "List the indexed scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.Scenes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			t := newTable("#", "Start", "End", "Description")
			for _, sc := range resp.Scenes {
				t.AppendRow(row(sc.Index, seconds(sc.Start), seconds(sc.End), orDash(sc.Description)))
			}
			t.Render()
			return nil
		},
	}
}

func newCandidatesCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates <media-id>",
		Short: "List heuristic clip candidates, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := cli.client.Candidates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(resp)
			}
			if len(resp.Candidates) == 0 {
				fmt.Println("no clip candidates; run enrichment first")
				return nil
			}
			t := newTable("#", "Start", "End", "Score", "Hook")
			for i, c := range resp.Candidates {
				t.AppendRow(row(i, seconds(c.Start), seconds(c.End),
					fmt.Sprintf("%.2f", c.Score), orDash(c.HookText)))
			}
			t.Render()
			return nil
		},
	}
}
