// Package main implements the playbookd CLI for maintaining scored agent
// playbooks.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/config"
	"github.com/fyrsmithlabs/playbookd/internal/curation"
	"github.com/fyrsmithlabs/playbookd/internal/evidence"
	"github.com/fyrsmithlabs/playbookd/internal/llm"
	"github.com/fyrsmithlabs/playbookd/internal/logging"
	"github.com/fyrsmithlabs/playbookd/internal/store"
	"github.com/fyrsmithlabs/playbookd/internal/validation"
)

var (
	// flagConfig is the config file path; empty means the default
	// location.
	flagConfig string
	// flagProject is the repository root whose playbook is targeted.
	flagProject string
	// flagGlobal targets the global playbook instead of the project one.
	flagGlobal bool
	// flagJSON switches output to machine-readable JSON.
	flagJSON bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "playbookd",
	Short: "Maintain scored playbooks of agent behavioral rules",
	Long: `playbookd curates playbooks: persistent, scored collections of
behavioral rules distilled from AI coding agent sessions. Rules gain and
lose standing through feedback, decay over time, and are promoted,
demoted, merged, or pruned by the curation engine.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/playbookd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&flagGlobal, "global", false, "operate on the global playbook")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON output")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(curateCmd)
	rootCmd.AddCommand(reflectCmd)
}

// app bundles the wired collaborators every command needs.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *store.Store
	engine      *curation.Engine
	globalPath  string
	projectRoot string
	projectPath string
}

// newApp loads config and wires the store and curation engine. The LLM
// chain and evidence searcher are wired lazily by the commands that need
// them.
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	globalPath, err := store.GlobalPlaybookPath(cfg.Store)
	if err != nil {
		return nil, err
	}

	projectRoot := flagProject
	if projectRoot == "" {
		if projectRoot, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
	}
	projectRoot, err = filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store.New(logger),
		engine:      curation.NewEngine(cfg.Curation, logger),
		globalPath:  globalPath,
		projectRoot: projectRoot,
		projectPath: store.ProjectPlaybookPath(cfg.Store, projectRoot),
	}, nil
}

// close flushes the logger.
func (a *app) close() {
	_ = logging.Sync(a.logger)
}

// targetPath resolves which playbook file a single-target command acts
// on.
func (a *app) targetPath() string {
	if flagGlobal {
		return a.globalPath
	}
	return a.projectPath
}

// otherPath is the playbook targetPath does not select.
func (a *app) otherPath() string {
	if flagGlobal {
		return a.projectPath
	}
	return a.globalPath
}

// searcher wires the evidence client, or nil when no endpoint is
// configured.
func (a *app) searcher() (evidence.Searcher, error) {
	if a.cfg.Evidence.BaseURL == "" {
		return nil, nil
	}
	return evidence.NewHTTPClient(a.cfg.Evidence)
}

// verdictClient wires the LLM chain, degrading to the accept-as-draft
// no-op when validation is disabled or no provider has credentials.
func (a *app) verdictClient() llm.VerdictClient {
	if !a.cfg.LLM.Enabled {
		return llm.NoOpVerdict{}
	}
	chain, err := llm.NewChain(a.cfg.LLM, a.logger)
	if err != nil {
		a.logger.Warn("LLM validation unavailable", zap.Error(err))
		return llm.NoOpVerdict{}
	}
	return chain
}

// reflector wires the LLM chain for delta extraction.
func (a *app) reflector() llm.Reflector {
	if !a.cfg.LLM.Enabled {
		return llm.NoOpReflector{}
	}
	chain, err := llm.NewChain(a.cfg.LLM, a.logger)
	if err != nil {
		a.logger.Warn("LLM reflection unavailable", zap.Error(err))
		return llm.NoOpReflector{}
	}
	return chain
}

// pipeline wires the validation pipeline for the validate-on-add flow.
func (a *app) pipeline() (*validation.Pipeline, error) {
	searcher, err := a.searcher()
	if err != nil {
		return nil, err
	}
	return validation.NewPipeline(a.cfg.Validation, searcher, a.verdictClient(), a.logger), nil
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
