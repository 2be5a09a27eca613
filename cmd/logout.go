package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logoutCmd removes stored credentials.
var logoutCmd = &cobra.Command{
	Use:   "logout <provider>",
	Short: "Remove the stored token",
	Long: `Remove the stored token for a provider and principal. The token is
only deleted locally; it is not revoked at the provider.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	e, err := setup(args[0])
	if err != nil {
		return err
	}

	if err := e.client.DeleteToken(e.tokenKey()); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	fmt.Printf("Logged out of %s as %s\n", e.provider, flagPrincipal)
	return nil
}
