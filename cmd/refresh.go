package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// refreshCmd forces a token refresh.
var refreshCmd = &cobra.Command{
	Use:   "refresh <provider>",
	Short: "Refresh the stored token now",
	Long: `Refresh the provider's token regardless of how much lifetime it has
left. Useful after a scope change or when a token is suspected revoked.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	e, err := setup(args[0])
	if err != nil {
		return err
	}

	token, err := e.refresher.ForceRefresh(cmd.Context(), e.tokenKey())
	if err != nil {
		return err
	}

	if token.ExpiresAt > 0 {
		fmt.Printf("Token refreshed, valid until %s\n",
			time.Unix(token.ExpiresAt, 0).Format(time.RFC3339))
	} else {
		fmt.Println("Token refreshed")
	}
	return nil
}
