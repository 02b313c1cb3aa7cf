package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adstack/leadsync/internal/refresh"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one credential refresh pass",
	Long: `Run one credential refresh pass over all connected accounts.

Exchanges each account's user token for a fresh long-lived one, replaces
the account's page list from upstream, and re-asserts the leadgen webhook
subscription on every page. One account failing never stops the rest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "refresh: open store")
		}
		defer st.Close()

		job := refresh.NewJob(st, newGraphClient(), refresh.Options{
			Threshold: time.Duration(cfg.Refresh.ThresholdDays) * 24 * time.Hour,
		})
		if err := job.Run(ctx); err != nil {
			return eris.Wrap(err, "refresh")
		}

		fmt.Println("Refresh pass complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
