package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/screener-cli/internal/extract"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/internal/store"
)

var (
	screenStage string
	screenFile  string
	screenTitle string
)

var screenCmd = &cobra.Command{
	Use:   "screen <project-id>",
	Short: "Screen a single document against a project's criteria",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		stage, ok := model.ParseStage(screenStage)
		if !ok {
			return eris.Errorf("invalid stage %q (use level_1 or level_2)", screenStage)
		}
		if screenFile == "" {
			return eris.New("--file is required")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.Store.GetProject(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		if project.Criteria.IsEmpty() {
			return eris.Errorf("project %d has no screening criteria", projectID)
		}

		text, err := extract.FromFile(cmd.Context(), env.Extractor, screenFile)
		if err != nil {
			return err
		}
		text, _ = extract.TruncateAtBibliography(text)

		title := screenTitle
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(screenFile), filepath.Ext(screenFile))
		}

		decision, err := env.Screener.Classify(cmd.Context(), text, project.Criteria, stage)
		if err != nil {
			return err
		}

		id, err := env.Store.SaveResult(cmd.Context(), projectID, stage, model.AuditRecord{
			Title:      title,
			Text:       text,
			Decision:   decision.Decision,
			Summary:    decision.Summary,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Source:     model.SourceSingle,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicateTitle) {
				return eris.Errorf("%q was already screened at %s in project %d", title, stage, projectID)
			}
			return err
		}

		fmt.Printf("record %d: %s (confidence %d)\n", id, decision.Decision, decision.Confidence)
		return printJSON(decision)
	},
}

func init() {
	screenCmd.Flags().StringVar(&screenStage, "stage", "level_1", "screening stage (level_1 or level_2)")
	screenCmd.Flags().StringVar(&screenFile, "file", "", "document to screen (PDF or text)")
	screenCmd.Flags().StringVar(&screenTitle, "title", "", "record title (default: file name)")
	rootCmd.AddCommand(screenCmd)
}
