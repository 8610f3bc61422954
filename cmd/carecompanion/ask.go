package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ent0n29/carecompanion/internal/app"
	"github.com/ent0n29/carecompanion/internal/chat"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>...",
		Short: "Send messages in order within one session and print the replies",
		Example: `  carecompanion ask "Hi, I'm John Smith" "I have swelling in my legs"
  carecompanion ask --backend local "Hi, I'm Abhishek B Shetty" "Latest research on SGLT2"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := app.BuildClient(cmd.Context(), cfg, logger, clientMetrics(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			return ask(cmd, client.Controller, args)
		},
	}
}

func ask(cmd *cobra.Command, ctrl *chat.Controller, messages []string) error {
	out := cmd.OutOrStdout()
	seen := len(ctrl.Transcript())
	failed := 0
	for _, msg := range messages {
		switch ctrl.Submit(cmd.Context(), msg) {
		case chat.OutcomeFailed:
			failed++
		case chat.OutcomeIgnored:
			continue
		}
		turns := ctrl.Transcript()
		for _, t := range turns[seen:] {
			printTurn(out, t)
		}
		seen = len(turns)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed", failed, len(messages))
	}
	return nil
}

func printTurn(w io.Writer, t chat.Turn) {
	if !t.IsAssistant() {
		color.New(color.Bold).Fprintf(w, "You: ")
		fmt.Fprintln(w, t.Content)
		return
	}

	label := t.AgentLabel()
	if label == "" {
		color.New(color.FgRed).Fprintln(w, t.Content)
		fmt.Fprintln(w)
		return
	}
	header := color.New(color.FgCyan, color.Bold)
	if t.Agent == chat.AgentClinical {
		header = color.New(color.FgBlue, color.Bold)
	}
	header.Fprint(w, label)
	switch {
	case t.SourceType == chat.SourceWeb:
		color.New(color.FgYellow).Fprint(w, " [Web]")
	case t.SourceType == chat.SourceKnowledgeBase && t.Agent == chat.AgentClinical:
		color.New(color.FgYellow).Fprint(w, " [Reference]")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, t.Content)
	if len(t.Citations) > 0 {
		faint := color.New(color.Faint)
		faint.Fprintln(w, "Sources:")
		for _, c := range t.Citations {
			faint.Fprintf(w, "  - %s\n", c)
		}
	}
	fmt.Fprintln(w)
}
