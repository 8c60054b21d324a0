// Command conveyor runs the containerized build pipeline and the agent
// development path against a project directory.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/conveyor-dev/conveyor/internal/adapters/claude"
	"github.com/conveyor-dev/conveyor/internal/adapters/docker"
	"github.com/conveyor-dev/conveyor/internal/adapters/github"
	"github.com/conveyor-dev/conveyor/internal/adapters/local"
	"github.com/conveyor-dev/conveyor/internal/adapters/sqlite"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/orchestrator"
	"github.com/conveyor-dev/conveyor/internal/pipeline"
	"github.com/conveyor-dev/conveyor/internal/ports"
)

var (
	sourceDir   string
	cfgFile     string
	runtimeName string
	verbose     bool

	repoURL    string
	tokenValue string
)

// containerRuntime is what the adapters provide beyond the port: scratch
// state that must be released when the command finishes.
type containerRuntime interface {
	ports.ContainerRuntime
	Cleanup(ctx context.Context)
}

func newLogger() *log.Logger {
	logger := log.New(os.Stderr)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func newRuntime() (containerRuntime, error) {
	switch runtimeName {
	case "docker":
		return docker.NewRuntime()
	case "local":
		return local.NewRuntime()
	default:
		return nil, fmt.Errorf("unknown runtime %q (want docker or local)", runtimeName)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load(sourceDir)
}

// setup loads config and builds the pipeline; cleanup releases the runtime's
// containers or scratch directories.
func setup() (*config.Config, *pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	rt, err := newRuntime()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger()
	cleanup := func() { rt.Cleanup(context.Background()) }
	return cfg, pipeline.New(rt, cfg, logger), cleanup, nil
}

func openStore(cfg *config.Config) (*sqlite.Store, error) {
	path := cfg.Store.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(sourceDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("preparing store dir: %w", err)
	}
	return sqlite.NewStore(path)
}

func newOrchestrator(cfg *config.Config, p *pipeline.Pipeline, store *sqlite.Store) *orchestrator.Orchestrator {
	logger := newLogger()

	engine := claude.NewEngine(logger)
	if cfg.Agent.Command != "" {
		engine.Command = cfg.Agent.Command
		engine.Args = cfg.Agent.Args
	}

	return orchestrator.New(engine, p, store, cfg.Commands.GeneratedDir, logger)
}

func trackerToken() domain.Secret {
	if tokenValue != "" {
		return domain.NewSecret(tokenValue)
	}
	return domain.NewSecret(os.Getenv("GITHUB_TOKEN"))
}

var rootCmd = &cobra.Command{
	Use:           "conveyor",
	Short:         "Containerized build pipeline with an agent development path",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the project's tests in a containerized environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		out, err := p.Test(cmd.Context(), sourceDir)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var buildEnvCmd = &cobra.Command{
	Use:   "build-env",
	Short: "Prepare a development environment with dependencies installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := p.BuildEnvironment(cmd.Context(), sourceDir); err != nil {
			return err
		}
		fmt.Println("environment ready")
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the application into a serving image",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		artifact, err := p.Build(cmd.Context(), sourceDir)
		if err != nil {
			return err
		}
		if _, err := artifact.Sync(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("build complete")
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Test, build, and push the application image under a unique tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		ref, err := p.Publish(cmd.Context(), sourceDir)
		if err != nil {
			return err
		}
		fmt.Println(ref)
		return nil
	},
}

var developCmd = &cobra.Command{
	Use:   "develop <assignment>",
	Short: "Run a coding agent against an assignment and validate the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := newOrchestrator(cfg, p, store).Develop(cmd.Context(), args[0], sourceDir)
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

var developIssueCmd = &cobra.Command{
	Use:   "develop-issue <number>",
	Short: "Complete a tracker issue with the agent and open a pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("issue number %q is not an integer", args[0])
		}
		if repoURL == "" {
			return fmt.Errorf("--repo is required")
		}

		cfg, p, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		tracker := github.NewTracker(trackerToken(), newLogger())
		url, err := newOrchestrator(cfg, p, store).DevelopIssue(cmd.Context(), tracker, repoURL, number, sourceDir)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded agent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		for _, run := range runs {
			line := fmt.Sprintf("%s  %-9s  %s", run.ID, run.State, run.Assignment)
			if run.ErrorMessage != "" {
				line += "  (" + run.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sourceDir, "source", "s", ".", "project source directory")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default <source>/conveyor.toml)")
	rootCmd.PersistentFlags().StringVar(&runtimeName, "runtime", "docker", "execution runtime (docker or local)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	developIssueCmd.Flags().StringVar(&repoURL, "repo", "", "repository URL, e.g. https://github.com/owner/name")
	developIssueCmd.Flags().StringVar(&tokenValue, "token", "", "tracker token (defaults to GITHUB_TOKEN)")

	rootCmd.AddCommand(testCmd, buildEnvCmd, buildCmd, publishCmd, developCmd, developIssueCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.New(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
