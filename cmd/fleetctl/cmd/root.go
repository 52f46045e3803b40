package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tankersim/internal/store/postgres"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Fleetctl is a command line tool for inspecting the simulated tanker fleet",
	Long: `fleetctl is the command-line interface for the tankersim fleet simulation.

The simulator maintains a live snapshot of every tanker plus an append-only
history of status changes in Postgres, and publishes transition events over
MQTT. fleetctl reads both surfaces.

Common workflows:

  List the whole fleet:
    fleetctl fleet

  Inspect one tanker:
    fleetctl status TNK-042

  Show its recent status changes:
    fleetctl history TNK-042 --limit 20

  Follow transition events live:
    fleetctl watch

Configuration:
  Set connection details via environment variables or a config file:
    TANKERSIM_DATABASE_URL   Postgres connection string (also read as DATABASE_URL)
    TANKERSIM_MQTT_BROKER    MQTT broker URL for watch (e.g. mqtt://localhost:1883)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".fleetctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".fleetctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TANKERSIM_VARNAME"
	viper.SetEnvPrefix("TANKERSIM")
	viper.AutomaticEnv()
	viper.BindEnv("database_url", "TANKERSIM_DATABASE_URL", "DATABASE_URL")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// openStore connects to the database configured via flags or environment.
func openStore(ctx context.Context) (*postgres.Store, error) {
	dbURL := viper.GetString("database_url")
	if dbURL == "" {
		return nil, fmt.Errorf("database URL not found. Please set it using the --database-url flag or the TANKERSIM_DATABASE_URL environment variable")
	}
	return postgres.New(ctx, dbURL)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fleetctl.yaml)")

	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().String("broker", "mqtt://localhost:1883", "MQTT broker URL")
	viper.BindPFlag("mqtt_broker", rootCmd.PersistentFlags().Lookup("broker"))
}
