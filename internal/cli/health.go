package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the backend status and runtime settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := a.newWidget()
			if err := w.LoadConfig(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Backend:   %s\nStatus:    unreachable\n", a.client.BaseURL())
				return err
			}

			cfg := w.Config()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:   %s\n", a.client.BaseURL())
			fmt.Fprintf(out, "Status:    %s\n", w.Snapshot().Health)
			fmt.Fprintf(out, "Bot:       %s\n", cfg.BotName)
			if cfg.LLMBackend != "" {
				fmt.Fprintf(out, "LLM:       %s\n", cfg.LLMBackend)
			}
			if n := cfg.CountdownSeconds(); n > 0 {
				fmt.Fprintf(out, "Auto-Yes:  after %ds\n", n)
			} else {
				fmt.Fprintln(out, "Auto-Yes:  off")
			}
			return nil
		},
	}
}
