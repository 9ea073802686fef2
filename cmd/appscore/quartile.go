package main

import (
	"github.com/spf13/cobra"

	"github.com/bau-research/appscore/internal/normalize"
	"github.com/bau-research/appscore/internal/scoring"
)

func init() {
	rootCmd.AddCommand(quartileCmd)
}

var quartileCmd = &cobra.Command{
	Use:   "quartile <percentile>",
	Short: "Show the quartile label and quality class for a percentile",
	Long: `Quartile maps a CiteScore percentile to the label and scoring weight
the compute command would assign. Accepts the same messy forms the
reference-table loader does ("92", "92.5", "92,5", "92%").`,
	Args: cobra.ExactArgs(1),
	RunE: runQuartile,
}

// QuartileResponse is the response for the quartile command.
type QuartileResponse struct {
	Percentile   float64  `json:"percentile"`
	Quartile     string   `json:"quartile"`
	QualityClass *float64 `json:"quality_class"`
}

func runQuartile(cmd *cobra.Command, args []string) error {
	v, ok := normalize.Percentage(args[0])
	if !ok {
		exitWithError(ExitDataError, "not a percentile: %q", args[0])
	}

	resp := QuartileResponse{
		Percentile: v,
		Quartile:   normalize.QuartileFromPercentile(&v),
	}
	if qc, ok := scoring.QualityClass(v); ok {
		resp.QualityClass = &qc
	}

	if humanOutput {
		if resp.QualityClass != nil {
			outputHuman("%.1f -> %s (quality class %.1f)\n", resp.Percentile, resp.Quartile, *resp.QualityClass)
		} else {
			outputHuman("%.1f -> not a valid percentile for scoring\n", resp.Percentile)
		}
		return nil
	}
	return outputJSON(resp)
}
