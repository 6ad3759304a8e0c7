package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List cameras",
	RunE:  runCameras,
}

var captureCmd = &cobra.Command{
	Use:   "capture [camera_id]",
	Short: "Capture a snapshot from a camera",
	Args:  cobra.ExactArgs(1),
	RunE:  runCapture,
}

func init() {
	rootCmd.AddCommand(camerasCmd)
	camerasCmd.AddCommand(captureCmd)
}

func runCameras(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.client.ListCameras(context.Background())
	if err != nil {
		return err
	}
	if !res.IsOk() {
		return failure(cmd.ErrOrStderr(), res.Err())
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLAST SEEN")
	for _, c := range res.Value() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, c.LastSeen)
	}
	return w.Flush()
}

func runCapture(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.client.CaptureSnapshot(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !res.IsOk() {
		return failure(cmd.ErrOrStderr(), res.Err())
	}
	return printJSON(cmd.OutOrStdout(), res.Value())
}
