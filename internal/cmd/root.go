package cmd

import (
	"fmt"
	"io"
	"strings"

	cmdconfig "github.com/Iron-Ham/autopilot/internal/cmd/config"
	"github.com/Iron-Ham/autopilot/internal/config"
	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Run multi-step plans with checkpoints and self-correction",
	Long: `Autopilot executes a plan of file, directory, shell, and git steps.

Independent steps run in parallel waves. A snapshot of the plan root is
taken before every wave that changes it, failed steps are retried with
automatic corrections, and a failed plan can be rolled back to the last
snapshot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// printError renders a command error, colored by severity. Transient step
// failures get a hint to rerun; errors not meant for users point at the log.
func printError(w io.Writer, err error) {
	style := errorStyle
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		style = warningStyle
	}
	fmt.Fprintln(w, style.Render("Error: "+err.Error()))

	switch {
	case errors.IsRetryable(err):
		fmt.Fprintln(w, mutedStyle.Render("The failure may be transient; running the plan again may succeed."))
	case !errors.IsUserFacing(err):
		fmt.Fprintln(w, mutedStyle.Render("Set logging.enabled to true for details."))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/autopilot/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	cmdconfig.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g., AUTOPILOT_RECOVERY_MAX_ATTEMPTS for recovery.max_attempts
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
