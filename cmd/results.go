package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/screener-cli/internal/model"
)

var (
	resultsStage   string
	resultsJSON    bool
	overrideDecide string
	overrideNote   string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect and override screening results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's results for one stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		stage, ok := model.ParseStage(resultsStage)
		if !ok {
			return eris.Errorf("invalid stage %q (use level_1 or level_2)", resultsStage)
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Store.ListResults(cmd.Context(), projectID, stage)
		if err != nil {
			return err
		}

		if resultsJSON {
			return printJSON(records)
		}

		for _, r := range records {
			mark := ""
			if r.Overridden() {
				mark = " [overridden]"
			}
			fmt.Printf("%d\t%s\t%d\t%s%s\n", r.ID, r.Decision, r.Confidence, r.Title, mark)
		}

		counts := model.CountRecords(records)
		fmt.Printf("total %d: %d include, %d exclude, %d unclear\n",
			counts.Total, counts.Include, counts.Exclude, counts.Unclear)
		return nil
	},
}

var resultsOverrideCmd = &cobra.Command{
	Use:   "override <record-id>",
	Short: "Override a screening decision with a human verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID, err := parseID(args[0])
		if err != nil {
			return err
		}
		stage, ok := model.ParseStage(resultsStage)
		if !ok {
			return eris.Errorf("invalid stage %q (use level_1 or level_2)", resultsStage)
		}
		decision := model.Decision(overrideDecide)
		if !model.IsValidDecision(decision) {
			return eris.Errorf("invalid decision %q (use INCLUDE, EXCLUDE or UNCLEAR)", overrideDecide)
		}
		if overrideNote == "" {
			return eris.New("--note is required: overrides must say why")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.OverrideDecision(cmd.Context(), stage, recordID, decision, overrideNote); err != nil {
			return err
		}
		fmt.Printf("record %d overridden to %s\n", recordID, decision)
		return nil
	},
}

func init() {
	resultsCmd.PersistentFlags().StringVar(&resultsStage, "stage", "level_1", "screening stage (level_1 or level_2)")
	resultsListCmd.Flags().BoolVar(&resultsJSON, "json", false, "emit full records as JSON")
	resultsOverrideCmd.Flags().StringVar(&overrideDecide, "decision", "", "new decision (INCLUDE, EXCLUDE or UNCLEAR)")
	resultsOverrideCmd.Flags().StringVar(&overrideNote, "note", "", "reviewer note explaining the override")

	resultsCmd.AddCommand(resultsListCmd, resultsOverrideCmd)
	rootCmd.AddCommand(resultsCmd)
}
