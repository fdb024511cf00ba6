package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"storycut/internal/logs"
	"storycut/internal/notifications"
	"storycut/internal/preflight"
)

func newLogsCommand(cli *cliContext) *cobra.Command {
	var follow bool
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log, optionally following it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(cli.cfg.Paths.LogDir, "storycutd.log")
			lines, offset, err := logs.LastLines(path, limit)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, time.Second, func(line string) error {
				fmt.Println(line)
				return nil
			})
			if err != nil && cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming appended lines")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "number of trailing lines to print first")
	return cmd
}

func newDoctorCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools and model settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := preflight.RunAll(cli.cfg)
			if cli.jsonOut {
				return printJSON(results)
			}
			t := newTable("Check", "OK", "Detail")
			for _, r := range results {
				t.AppendRow(row(r.Name, r.Passed, orDash(r.Detail)))
			}
			t.Render()
			if failed := preflight.Failures(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func newNotifyTestCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test push notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := notifications.NewService(cli.cfg)
			if err := svc.TestNotification(cmd.Context()); err != nil {
				return err
			}
			if cli.cfg.Notify.NtfyTopic == "" {
				fmt.Println("no ntfy topic configured; nothing was sent")
				return nil
			}
			fmt.Println("test notification sent")
			return nil
		},
	}
}
