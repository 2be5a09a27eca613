package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"latchkey/pkg/oauth"
)

var tokenThreshold float64

// tokenCmd prints a valid access token, refreshing it when needed.
var tokenCmd = &cobra.Command{
	Use:   "token <provider>",
	Short: "Print a valid access token",
	Long: `Print a valid access token for the provider, refreshing it first if
it has expired or has consumed the configured fraction of its lifetime.
Intended for scripting:

  curl -H "Authorization: Bearer $(latchkey token github.com)" ...`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().Float64Var(&tokenThreshold, "threshold", -1, "Refresh once this fraction of the token lifetime has elapsed (overrides config)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	e, err := setup(args[0])
	if err != nil {
		return err
	}

	threshold := e.cfg.Refresh.Threshold
	if tokenThreshold >= 0 {
		threshold = tokenThreshold
	}

	var token *oauth.Token
	if threshold > 0 {
		token, err = e.refresher.GetValidTokenWithThreshold(cmd.Context(), e.tokenKey(), threshold)
	} else {
		token, err = e.refresher.GetValidToken(cmd.Context(), e.tokenKey())
	}
	if err != nil {
		return err
	}

	fmt.Println(token.AccessToken)
	return nil
}
