package cli

import (
	"github.com/spf13/cobra"

	"github.com/casedesk/smechat/internal/tui"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Long: `Open the full-screen chat.

Keys:
  enter       ask the question
  ctrl+y      mark the latest answer as helpful
  ctrl+n      mark it as not helpful and write a referral note
  ctrl+r      return to an open referral note
  ctrl+s      submit the referral
  esc         dismiss the referral
  ctrl+c      quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(cmd.Context(), a.client, a.widgetOpts...)
		},
	}
}
