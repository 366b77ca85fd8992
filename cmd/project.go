package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/trialscope/screener-cli/internal/extract"
	"github.com/trialscope/screener-cli/internal/model"
)

var (
	projectOwner        string
	projectCriteriaFile string
	projectProtocolFile string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage review projects and their protocols",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project, optionally with a criteria file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var criteria model.Criteria
		if projectCriteriaFile != "" {
			criteria, err = loadCriteriaFile(projectCriteriaFile)
			if err != nil {
				return err
			}
		}

		project, err := env.Store.CreateProject(cmd.Context(), projectOwner, args[0], criteria)
		if err != nil {
			return err
		}

		fmt.Printf("created project %d (%s)\n", project.ID, project.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		projects, err := env.Store.ListProjects(cmd.Context(), projectOwner)
		if err != nil {
			return err
		}

		for _, p := range projects {
			status := "criteria set"
			if p.Criteria.IsEmpty() {
				status = "no criteria"
			}
			fmt.Printf("%d\t%s\t%s\t%s\n", p.ID, p.Name, status, p.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var projectCriteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Set or extract a project's screening criteria",
}

var projectCriteriaSetCmd = &cobra.Command{
	Use:   "set <project-id>",
	Short: "Replace a project's criteria from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}

		criteria, err := loadCriteriaFile(projectCriteriaFile)
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.UpdateCriteria(cmd.Context(), projectID, criteria); err != nil {
			return err
		}
		fmt.Printf("criteria updated for project %d\n", projectID)
		return nil
	},
}

var projectCriteriaExtractCmd = &cobra.Command{
	Use:   "extract <project-id>",
	Short: "Extract PICO+E criteria from a free-text protocol document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if projectProtocolFile == "" {
			return eris.New("--protocol is required")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		text, err := extract.FromFile(cmd.Context(), env.Extractor, projectProtocolFile)
		if err != nil {
			return err
		}

		criteria, err := env.Screener.ExtractCriteria(cmd.Context(), text)
		if err != nil {
			return err
		}
		if criteria.IsEmpty() {
			return eris.New("no criteria could be extracted from the protocol")
		}

		if err := env.Store.UpdateCriteria(cmd.Context(), projectID, criteria); err != nil {
			return err
		}
		zap.L().Info("criteria extracted from protocol",
			zap.Int64("project_id", projectID),
			zap.String("protocol", projectProtocolFile),
		)

		return printJSON(criteria)
	},
}

// loadCriteriaFile reads a YAML criteria file. Both the canonical keys
// and the legacy single-letter keys (p/i/c/o/s/e) are accepted; the
// normalized canonical form is what gets stored.
func loadCriteriaFile(path string) (model.Criteria, error) {
	if path == "" {
		return model.Criteria{}, eris.New("--criteria is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Criteria{}, eris.Wrapf(err, "read criteria file %s", path)
	}

	var criteria model.Criteria
	if err := yaml.Unmarshal(data, &criteria); err != nil {
		return model.Criteria{}, eris.Wrapf(err, "parse criteria file %s", path)
	}

	var raw map[string]any
	_ = yaml.Unmarshal(data, &raw)
	aliases := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			aliases[k] = s
		}
	}

	criteria = model.NormalizeCriteria(criteria, aliases)
	if criteria.IsEmpty() {
		return model.Criteria{}, eris.Errorf("criteria file %s defines no criteria", path)
	}
	return criteria, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	projectCmd.PersistentFlags().StringVar(&projectOwner, "owner", "default", "project owner")
	projectCreateCmd.Flags().StringVar(&projectCriteriaFile, "criteria", "", "YAML criteria file")
	projectCriteriaSetCmd.Flags().StringVar(&projectCriteriaFile, "criteria", "", "YAML criteria file")
	projectCriteriaExtractCmd.Flags().StringVar(&projectProtocolFile, "protocol", "", "protocol document (PDF or text)")

	projectCriteriaCmd.AddCommand(projectCriteriaSetCmd, projectCriteriaExtractCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectCriteriaCmd)
	rootCmd.AddCommand(projectCmd)
}
