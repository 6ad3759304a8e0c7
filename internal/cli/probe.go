package cli

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/fleetclient/internal/fleet"
)

var probeAnalysisID string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which backend features are available",
	Long:  `Probe runs the stats, camera list and analysis re-run calls concurrently and reports which protocol generation answered each one.`,
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeAnalysisID, "analysis", "probe", "analysis id used for the re-run probe")
	rootCmd.AddCommand(probeCmd)
}

// probeResult is one line of the probe report.
type probeResult struct {
	Operation string
	Available bool
	Detail    string
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := probeAll(context.Background(), a.client, probeAnalysisID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "OPERATION\tAVAILABLE\tDETAIL")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\n", r.Operation, r.Available, r.Detail)
	}
	return w.Flush()
}

// probeAll issues the probes concurrently. Classified failures are part of
// the report; only malformed requests abort it.
func probeAll(ctx context.Context, client *fleet.Client, analysisID string) ([]probeResult, error) {
	var (
		mu      sync.Mutex
		results []probeResult
	)
	add := func(r probeResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := client.SystemStats(ctx)
		if err != nil {
			return err
		}
		if !res.IsOk() {
			add(probeResult{fleet.OpSystemStats, false, res.Err().Code})
			return nil
		}
		add(probeResult{fleet.OpSystemStats, true, fmt.Sprintf("cpu %.1f%%", res.Value().CPU)})
		return nil
	})

	g.Go(func() error {
		res, err := client.ListCameras(ctx)
		if err != nil {
			return err
		}
		if !res.IsOk() {
			add(probeResult{fleet.OpListCameras, false, res.Err().Code})
			return nil
		}
		add(probeResult{fleet.OpListCameras, true, fmt.Sprintf("%d cameras", len(res.Value()))})
		return nil
	})

	g.Go(func() error {
		res, err := client.RerunAnalysis(ctx, analysisID)
		if err != nil {
			return err
		}
		switch {
		case !res.IsOk():
			add(probeResult{fleet.OpRerunAnalysis, false, res.Err().Code})
		case !res.Value().Supported:
			add(probeResult{fleet.OpRerunAnalysis, false, "not supported"})
		default:
			add(probeResult{fleet.OpRerunAnalysis, true, "job " + res.Value().Value.JobID})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Operation < results[j].Operation })
	return results, nil
}
