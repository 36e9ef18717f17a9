package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newReferralsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "referrals",
		Short: "List referrals filed from this machine",
		Long: `List the referrals filed with this client's identity, newest first.

Resolved referrals show the expert's response.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.MyReferrals(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list referrals: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No referrals yet.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REFERENCE\tSTATUS\tKIND\tCREATED\tQUESTION")
			for _, r := range list {
				kind := "manual"
				if r.Automatic {
					kind = "auto"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Reference, r.Status, kind, r.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(r.Question, 50))
			}
			w.Flush()

			for _, r := range list {
				if r.Response != "" {
					fmt.Fprintf(out, "\n%s: %s\n", r.Reference, r.Response)
				}
			}
			return nil
		},
	}
}
