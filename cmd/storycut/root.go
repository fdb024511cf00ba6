package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storycut/internal/client"
	"storycut/internal/config"
)

// cliContext carries the resolved config and daemon client into every
// subcommand.
type cliContext struct {
	cfg        *config.Config
	configPath string
	client     *client.Client
	jsonOut    bool
}

func newRootCommand() *cobra.Command {
	cli := &cliContext{}
	var configPath string

	root := &cobra.Command{
		Use:           "storycut",
		Short:         "Turn long recordings into story-driven cuts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, resolved, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cli.cfg = cfg
			cli.configPath = resolved
			cli.client = client.New(cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the storycut config file")
	root.PersistentFlags().BoolVar(&cli.jsonOut, "json", false, "emit machine-readable JSON")

	root.AddCommand(
		newAddCommand(cli),
		newShowCommand(cli),
		newRemoveCommand(cli),
		newEnrichCommand(cli),
		newJobsCommand(cli),
		newTranscriptCommand(cli),
		newScenesCommand(cli),
		newCandidatesCommand(cli),
		newPlanCommand(cli),
		newRenderCommand(cli),
		newCancelCommand(cli),
		newStatusCommand(cli),
		newLogsCommand(cli),
		newDoctorCommand(cli),
		newNotifyTestCommand(cli),
		newConfigCommand(cli),
	)
	return root
}
