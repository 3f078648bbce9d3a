// mgenctl controls generator instances: it runs a session and streams its
// events, sends raw commands to a running instance, and starts single flows.
package main

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/session"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Global flags
var (
	configPath string
	instance   string
	socketDir  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mgenctl",
	Short:         "Control MGEN traffic generator instances",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVarP(&instance, "instance", "i", "", "generator instance name (overrides the config)")
	rootCmd.PersistentFlags().StringVar(&socketDir, "socket-dir", "", "directory holding instance control sockets (overrides the config)")

	rootCmd.AddCommand(runCmd, sendCmd, flowCmd, watchCmd)
}

// loadConfig reads the configuration file, if any, and applies the global
// flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, err
		}
		log.Printf("Configuration loaded from %s", configPath)
	}
	if instance != "" {
		cfg.Generator.Instance = instance
	}
	if socketDir != "" {
		cfg.Generator.SocketDir = socketDir
	}
	return cfg, nil
}

func sessionOptions(cfg *config.Config) session.Options {
	g := cfg.Generator
	return session.Options{
		Name:      g.Instance,
		GPSKey:    g.GPSKey,
		Binary:    g.Binary,
		SocketDir: g.SocketDir,
		PipeDir:   g.PipeDir,
	}
}
