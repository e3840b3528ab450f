package main

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/finjudge/internal/configuration"
	"github.com/ahrav/finjudge/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// globals holds state shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *configuration.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "finjudge",
		Short: "Judge orchestration and hybrid scoring for financial QA answers",
		Long: `finjudge evaluates model answers against gold answers with three judges
(semantic equivalence, numeric tolerance, contradiction), combines their outputs
into a single penalized score and records an auditable trace per task.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configuration.Load(g.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.LogLevel = g.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Observability.LogFormat = g.logFormat
			}
			level, err := logging.ParseLevel(cfg.Observability.LogLevel)
			if err != nil {
				return err
			}
			logging.Init(level, cfg.Observability.LogFormat, cmd.ErrOrStderr())
			g.cfg = cfg
			return nil
		},
	}
	root.Version = version

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to YAML config file")
	pf.StringVar(&g.logLevel, "log-level", configuration.DefaultLogLevel, "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", configuration.DefaultLogFormat, "Log format: text or json")

	root.AddCommand(
		newRunCmd(g),
		newReplayCmd(g),
		newReportCmd(g),
		newStabilityCmd(g),
		newServeCmd(g),
		newWorkerCmd(g),
		newMCPCmd(g),
	)
	return root
}
