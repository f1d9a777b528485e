package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "decksync",
	Short: "Record collection sync and import",
	Long: `decksync manages a local record collection (templates, notes, cards,
media) and reconciles it with foreign collection files.

The import is one-directional: everything in the foreign collection is
pulled into the local one, nothing is pushed back, and nothing local is
ever deleted. Media assets are reconciled by content hash in a separate
pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("collection", "collection.deck", "path to the local collection file")
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./decksync.yaml)")
	rootCmd.PersistentFlags().String("log-file", "", "append logs to a rotating file instead of stderr")

	_ = viper.BindPFlag("collection", rootCmd.PersistentFlags().Lookup("collection"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig loads the config file (if any) and the DECKSYNC_*
// environment.
func initConfig() {
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.SetConfigName("decksync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("DECKSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}

// newLogger builds the logger every subsystem receives. Logging
// configuration is explicit: stderr by default, a rotating file when
// log_file is configured. No package reads ambient process state.
func newLogger(prefix string) *log.Logger {
	if path := viper.GetString("log_file"); path != "" {
		return log.New(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, prefix, log.LstdFlags)
	}
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// collectionPath returns the configured local collection path.
func collectionPath() string {
	return viper.GetString("collection")
}
