package main

import (
	"Go2Mgen/internal/bus"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchAll bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events published on the NATS bus",
	Long: `Subscribe to the configured NATS subject and print every event published
by running sessions, prefixed with the instance it came from. Only the
instance given with -i is shown unless --all is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sub, err := bus.NewSubscriber(cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer sub.Close()

		only := cfg.Generator.Instance
		if watchAll {
			only = ""
		}
		err = sub.Start(func(m bus.Message) {
			if only != "" && m.Instance != only {
				return
			}
			fmt.Printf("%s %s\n", m.Instance, m.Event.String())
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "show events of every instance")
}
