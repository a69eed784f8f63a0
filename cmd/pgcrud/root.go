package pgcrud

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var logLevel string
var rootCmd = &cobra.Command{
	Use:   "pgcrud",
	Short: "pgcrud serves PostgreSQL tables as filterable REST resources",
	Long: `pgcrud exposes tables as REST resources. List requests take filter, or,
join, sort and pagination parameters that compile to parameterized SQL.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pgcrud.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "log at this level (debug, info, warn, error, none); overrides the config file")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compileCmd)
}

// newLogger builds a JSON production logger at level. "none" disables logging.
func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
		return zap.NewNop(), nil
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
