package cli

import (
	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
)

// Set by the root command before any subcommand runs.
var (
	paths config.Paths
	log   *logging.Logger
)

type rootFlags struct {
	config   string
	logLevel string
}

var flags rootFlags

// setup resolves the GAIA home and builds the CLI logger. Commands that
// open a runtime replace the logger with the configured one.
func (f *rootFlags) setup(*cobra.Command, []string) error {
	p, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if f.config != "" {
		p.Config = f.config
	}
	paths = p

	level := f.logLevel
	if level == "" {
		level = "warn"
	}
	log = logging.New(nil, level)
	return nil
}

func newRootCmd() *cobra.Command {
	flags = rootFlags{}
	root := &cobra.Command{
		Use:               "gaia",
		Short:             "GAIA conversational concierge",
		Long:              "GAIA answers chat turns with a language model that can search places and partner establishments.",
		PersistentPreRunE: flags.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default $GAIA_HOME/config.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn, error or silent")

	root.AddCommand(
		newGatewayCmd(),
		newChatCmd(),
		newSessionCmd(),
		newToolsCmd(),
		newPersonaCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the gaia command line.
func Execute() error {
	return newRootCmd().Execute()
}
