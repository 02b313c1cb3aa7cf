package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adstack/leadsync/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one lead ingestion pass",
	Long: `Run one lead ingestion pass over all connected accounts.

Walks every account's pages, their lead forms, and each form's leads, and
stores every lead not already present. Safe to re-run: stored leads are
skipped by their upstream lead id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest: open store")
		}
		defer st.Close()

		job := ingest.NewJob(st, newGraphClient(), ingest.Options{
			FreshFormMetadata: cfg.Ingest.FreshFormMetadata,
		})
		if err := job.Run(ctx); err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Println("Ingestion pass complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
