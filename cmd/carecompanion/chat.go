package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ent0n29/carecompanion/internal/app"
	"github.com/ent0n29/carecompanion/internal/tui"
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v)
		},
	}
}

func runChat(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := app.BuildClient(cmd.Context(), cfg, logger, clientMetrics(cfg))
	if err != nil {
		return err
	}
	defer client.Close()

	return tui.Run(cmd.Context(), client.Controller)
}
