package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"kineticfit/pkg/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch <inputdir>",
	Short: "Fit a model to every data file in a folder",
	Long: `Fit the selected model to every CSV file in a folder. Each file is
validated, fitted and exported independently; files that fail are recorded
with a reason and the run continues. A summary CSV and per-file curve
exports are written to the output directory.

Interrupting the run (Ctrl-C) stops between files and keeps the results
completed so far.

Examples:
  kineticfit batch ./data --model HF1-2CFM --roi Liver --aif Aorta
  kineticfit batch ./data --model 2-2CFM --roi Liver --aif Aorta --vif "Portal Vein" --out ./results`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	batchModel string
	batchROI   string
	batchAIF   string
	batchVIF   string
	batchStart string
	batchOut   string
	batchExt   string
	batchQuiet bool
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchModel, "model", "m", "", "Model ID from the catalog")
	batchCmd.Flags().StringVar(&batchROI, "roi", "", "Region-of-interest column name")
	batchCmd.Flags().StringVar(&batchAIF, "aif", "", "Arterial input column name")
	batchCmd.Flags().StringVar(&batchVIF, "vif", "", "Venous input column name (dual-inlet models)")
	batchCmd.Flags().StringVar(&batchStart, "start", "", "Comma-separated starting parameter values")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "Output directory (default: input directory)")
	batchCmd.Flags().StringVar(&batchExt, "ext", ".csv", "Data file extension")
	batchCmd.Flags().BoolVarP(&batchQuiet, "quiet", "q", false, "Suppress per-file progress output")
	_ = batchCmd.MarkFlagRequired("model")
	_ = batchCmd.MarkFlagRequired("roi")
	_ = batchCmd.MarkFlagRequired("aif")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	initial, err := parseStart(batchStart)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	params := &batch.Params{
		InputDir:  args[0],
		Extension: batchExt,
		ROIColumn: batchROI,
		AIFColumn: batchAIF,
		VIFColumn: batchVIF,
		ModelID:   batchModel,
		Catalog:   cat,
		Initial:   initial,
		OutputDir: batchOut,
	}
	if !batchQuiet {
		params.Progress = func(done, total int, rec batch.Record) {
			line := fmt.Sprintf("[%d/%d] %s: %s", done, total, rec.File, rec.Status)
			if rec.Reason != "" {
				line += " (" + rec.Reason + ")"
			}
			fmt.Println(line)
		}
	}

	sum, runErr := batch.Run(ctx, params)
	if sum != nil {
		fmt.Printf("\n%d fitted, %d rejected, %d failed out of %d files\n",
			sum.Fitted, sum.Rejected, sum.Failed, len(sum.Records))
		if sum.SummaryPath != "" {
			fmt.Printf("Summary written to %s\n", sum.SummaryPath)
		}
	}
	if errors.Is(runErr, context.Canceled) {
		fmt.Println("Interrupted; partial results kept")
		return nil
	}
	return runErr
}
