// Command bridgesync runs the hub/tracker sync engine standalone. Hosts that
// embed the plugin call the bridgesync package directly; this binary is the
// same engine behind a config file and a couple of subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slatewood/bridgesync"
	"github.com/slatewood/bridgesync/internal/eventlog"
)

var version = "dev"

var (
	cfgFile     string
	verboseFlag bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "bridgesync",
	Short:         "Bi-directional hub/tracker artifact sync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default bridgesync.yaml in . or $HOME/.bridgesync)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "emit trace-level log entries")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bridgesync")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.bridgesync")
		}
	}
	viper.SetEnvPrefix("BRIDGESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// stderrSink prints engine log entries line by line with their severity.
func stderrSink() eventlog.Sink {
	return eventlog.SinkFunc(func(sev eventlog.Severity, msg string) {
		fmt.Fprintf(os.Stderr, "%s [%s] %s\n", time.Now().Format(time.RFC3339), sev, msg)
	})
}

// setupParams folds the config keys into the plugin's setup parameters.
func setupParams() bridgesync.SetupParams {
	return bridgesync.SetupParams{
		EventLogSink: stderrSink(),
		TraceLogging: verboseFlag || viper.GetBool("verbose"),

		DataSyncSystemID: viper.GetInt("system-id"),

		HubBaseURL:    viper.GetString("hub.url"),
		HubLogin:      viper.GetString("hub.login"),
		HubPassword:   viper.GetString("hub.password"),
		HubWebBaseURL: viper.GetString("hub.web-url"),

		TrackerBaseURL:               viper.GetString("tracker.url"),
		TrackerLogin:                 viper.GetString("tracker.login"),
		TrackerPassword:              viper.GetString("tracker.password"),
		TrackerUseDefaultCredentials: viper.GetBool("tracker.default-credentials"),
		AcceptAllCertificates:        viper.GetBool("tracker.accept-all-certs"),

		OffsetHours:     viper.GetInt("offset-hours"),
		AutoMapUsers:    viper.GetBool("automap-users"),
		TrackerTimezone: viper.GetString("tracker.timezone"),

		PushUpdatedOnly:                   viper.GetBool("push-updated-only"),
		PersistAutoCreatedReleaseMappings: viper.GetBool("persist-release-mappings"),
		DefaultHubUserID:                  viper.GetInt("default-user-id"),
		SyncFlagProperty:                  viper.GetString("sync-flag-property"),
		ProjectKeyProperty:                viper.GetString("project-key-property"),

		Custom01: viper.GetString("custom01"),
		Custom02: viper.GetString("custom02"),
		Custom03: viper.GetString("custom03"),
		Custom04: viper.GetString("custom04"),
		Custom05: viper.GetString("custom05"),
	}
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
