package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storycut/internal/config"
	"storycut/internal/media"
)

func newCancelCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued job or flag a running one to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := cli.client.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(view)
			}
			fmt.Printf("job %s is now %s\n", view.JobID, view.Status)
			return nil
		},
	}
}

func newStatusCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's supervisor and stage health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := cli.client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if cli.jsonOut {
				return printJSON(status)
			}
			state := "stopped"
			if status.Running {
				state = fmt.Sprintf("running with %d workers", status.Workers)
			}
			fmt.Println("supervisor:", state)
			if status.LastError != "" {
				fmt.Println("last error:", status.LastError)
			}
			counts := newTable("Queue", "Jobs")
			for _, queue := range []media.JobStatus{
				media.JobQueued, media.JobRunning, media.JobCompleted,
				media.JobFailed, media.JobCancelled,
			} {
				counts.AppendRow(row(string(queue), status.JobCounts[queue]))
			}
			counts.Render()
			stages := newTable("Stage", "Ready", "Detail")
			for _, h := range status.Stages {
				stages.AppendRow(row(h.Name, h.Ready, orDash(h.Detail)))
			}
			stages.Render()
			return nil
		},
	}
}

func newConfigCommand(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the resolved config file path",
		RunE: func(*cobra.Command, []string) error {
			fmt.Println(cli.configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sample",
		Short: "Print an annotated sample config",
		RunE: func(*cobra.Command, []string) error {
			fmt.Print(config.SampleConfig())
			return nil
		},
	})
	return cmd
}
