package cmd

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("TANKERSIM")
	viper.AutomaticEnv()
	viper.BindEnv("database_url", "TANKERSIM_DATABASE_URL", "DATABASE_URL")
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("TANKERSIM_DATABASE_URL", "postgres://env-host/fleet")
	t.Setenv("TANKERSIM_MQTT_BROKER", "mqtt://env-broker:1883")

	dbURL := viper.GetString("database_url")
	broker := viper.GetString("mqtt_broker")

	if dbURL != "postgres://env-host/fleet" {
		t.Errorf("expected database url from env var, got: %s", dbURL)
	}
	if broker != "mqtt://env-broker:1883" {
		t.Errorf("expected broker from env var, got: %s", broker)
	}
}

func TestRootCommand_BareDatabaseURLEnvVar(t *testing.T) {
	resetViper()

	t.Setenv("DATABASE_URL", "postgres://bare-host/fleet")

	dbURL := viper.GetString("database_url")
	if dbURL != "postgres://bare-host/fleet" {
		t.Errorf("expected bare DATABASE_URL to be honored, got: %s", dbURL)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	if err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	expected := map[string]bool{
		"fleet":               false,
		"status [tanker_id]":  false,
		"history [tanker_id]": false,
		"watch":               false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Use]; ok {
			expected[cmd.Use] = true
		}
	}
	for use, found := range expected {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", use)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	err := Execute()
	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp("", "fleetctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.WriteString("database_url: postgres://from-config/fleet\nmqtt_broker: mqtt://from-config:1883\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	initConfig()

	if got := viper.GetString("database_url"); got != "postgres://from-config/fleet" {
		t.Errorf("expected database url from config file, got: %s", got)
	}
	if got := viper.GetString("mqtt_broker"); got != "mqtt://from-config:1883" {
		t.Errorf("expected broker from config file, got: %s", got)
	}

	cfgFile = ""
}
