package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/classify-cli/internal/output"
)

var (
	runInput    string
	runTaxonomy string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify a vendor list end to end",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		taxonomyPath := runTaxonomy
		if taxonomyPath == "" {
			taxonomyPath = cfg.Taxonomy.Path
		}
		tree, err := loadTaxonomy(taxonomyPath)
		if err != nil {
			return eris.Wrap(err, "load taxonomy")
		}
		zap.L().Info("taxonomy loaded",
			zap.String("path", taxonomyPath),
			zap.Int("categories", tree.Size()),
		)

		vendors, err := output.ReadVendors(runInput)
		if err != nil {
			return eris.Wrap(err, "read vendor list")
		}

		orch, err := buildOrchestrator(st, tree)
		if err != nil {
			return err
		}

		j, err := orch.Submit(ctx, vendors)
		if err != nil {
			return eris.Wrap(err, "submit job")
		}
		zap.L().Info("job submitted",
			zap.String("job_id", j.ID),
			zap.Int("vendors", len(vendors)),
		)

		if err := orch.Run(ctx, j.ID); err != nil {
			return eris.Wrap(err, "run job")
		}

		final, err := st.GetJob(ctx, j.ID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "vendor list file, xlsx or csv (required)")
	runCmd.Flags().StringVar(&runTaxonomy, "taxonomy", "", "taxonomy file (default from config)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
