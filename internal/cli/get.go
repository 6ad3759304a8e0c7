package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var getLegacy bool

var getCmd = &cobra.Command{
	Use:   "get [path]",
	Short: "Fetch a path and print its payload",
	Long:  `Fetch a versioned path (sent as /v1<path>) or, with --legacy, an unprefixed legacy path.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getLegacy, "legacy", false, "request the unprefixed legacy path")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.client.Get(context.Background(), args[0], getLegacy)
	if err != nil {
		return err
	}
	if !res.IsOk() {
		return failure(cmd.ErrOrStderr(), res.Err())
	}

	payload := res.Value()
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return printJSON(cmd.OutOrStdout(), payload)
}
