package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/screener-cli/internal/batch"
	"github.com/trialscope/screener-cli/internal/extract"
	"github.com/trialscope/screener-cli/internal/model"
)

var (
	mineFile   string
	mineScreen bool
)

var mineCmd = &cobra.Command{
	Use:   "mine <project-id>",
	Short: "Mine a systematic review's bibliography for candidate studies",
	Long:  "Extracts every reference from a published review and flags the ones the review reports as included studies. With --screen, the flagged candidates are screened at level_1 by title.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if mineFile == "" {
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

		// The bibliography stays in: it is the input here.
		text, err := extract.FromFile(cmd.Context(), env.Extractor, mineFile)
		if err != nil {
			return err
		}

		candidates, err := env.Miner.Mine(cmd.Context(), text, project.Criteria)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			flag := " "
			if c.IsRelevant {
				flag = "*"
			}
			fmt.Printf("%s\t%s\t%s\n", flag, c.AuthorYear, c.Title)
		}

		if !mineScreen {
			return nil
		}

		reviewName := strings.TrimSuffix(filepath.Base(mineFile), filepath.Ext(mineFile))
		items := minedItems(candidates, reviewName)
		if len(items) == 0 {
			fmt.Println("no relevant candidates to screen")
			return nil
		}

		outcomes, runErr := env.Orchestrator.Run(cmd.Context(), projectID, model.StageLevel1, items)
		for _, out := range outcomes {
			fmt.Printf("%s\t%s\t%s\n", out.Kind, out.Decision, out.Title)
		}
		return runErr
	},
}

// minedItems turns the relevant candidates into screenable items. Only
// the title is available at this point, so the title doubles as the
// text; level_1 is built for exactly this thin-input case.
func minedItems(candidates []model.CitationCandidate, reviewName string) []batch.DocumentItem {
	var items []batch.DocumentItem
	source := model.SourceMined
	if reviewName != "" {
		source = model.SourceMinedPrefix + reviewName
	}
	for _, c := range candidates {
		if !c.IsRelevant || c.Title == "" {
			continue
		}
		items = append(items, batch.DocumentItem{
			Title:  c.Title,
			Text:   c.Title,
			Source: source,
		})
	}
	return items
}

func init() {
	mineCmd.Flags().StringVar(&mineFile, "file", "", "review document to mine (PDF or text)")
	mineCmd.Flags().BoolVar(&mineScreen, "screen", false, "screen relevant candidates at level_1")
	rootCmd.AddCommand(mineCmd)
}
