package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/screener-cli/internal/batch"
	"github.com/trialscope/screener-cli/internal/model"
)

var (
	batchStage  string
	batchCSV    string
	batchXLSX   string
	batchPDFDir string
)

var batchCmd = &cobra.Command{
	Use:   "batch <project-id>",
	Short: "Screen a batch of documents from a CSV, XLSX or PDF directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		stage, ok := model.ParseStage(batchStage)
		if !ok {
			return eris.Errorf("invalid stage %q (use level_1 or level_2)", batchStage)
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var items []batch.DocumentItem
		switch {
		case batchCSV != "":
			items, err = batch.LoadCSV(batchCSV)
		case batchXLSX != "":
			items, err = batch.LoadXLSX(batchXLSX)
		case batchPDFDir != "":
			items, err = batch.LoadPDFDir(cmd.Context(), env.Extractor, batchPDFDir)
		default:
			return eris.New("one of --csv, --xlsx or --pdf-dir is required")
		}
		if err != nil {
			return err
		}

		outcomes, runErr := env.Orchestrator.Run(cmd.Context(), projectID, stage, items)

		for _, out := range outcomes {
			switch out.Kind {
			case batch.OutcomeSaved:
				fmt.Printf("saved\t%d\t%s\t%s\n", out.RecordID, out.Decision, out.Title)
			case batch.OutcomeDuplicate:
				fmt.Printf("dup\t-\t-\t%s\n", out.Title)
			case batch.OutcomeFailed:
				fmt.Printf("failed\t-\t-\t%s: %v\n", out.Title, out.Err)
			}
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchStage, "stage", "level_1", "screening stage (level_1 or level_2)")
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "CSV file with Title and Abstract columns")
	batchCmd.Flags().StringVar(&batchXLSX, "xlsx", "", "XLSX workbook with Title and Abstract columns")
	batchCmd.Flags().StringVar(&batchPDFDir, "pdf-dir", "", "directory of full-text PDFs")
	rootCmd.AddCommand(batchCmd)
}
