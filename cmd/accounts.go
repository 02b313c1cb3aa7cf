package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected accounts and their token state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "accounts: open store")
		}
		defer st.Close()

		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return eris.Wrap(err, "accounts: list")
		}

		if len(accounts) == 0 {
			fmt.Println("No connected accounts")
			return nil
		}

		now := time.Now()
		for _, a := range accounts {
			remaining := a.TokenRemaining(now)
			state := "valid"
			if remaining <= 0 {
				state = "expired"
			}
			fmt.Printf("%s\t%s\ttoken %s (expires %s)\t%d pages\n",
				a.UserID, a.Name, state,
				a.TokenExpiresAt().Format(time.RFC3339),
				len(a.Pages),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}
