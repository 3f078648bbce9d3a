package main

import (
	"Go2Mgen/internal/ipc"
	"strings"

	"github.com/spf13/cobra"
)

var sendAsEvent bool

var sendCmd = &cobra.Command{
	Use:   "send TEXT...",
	Short: "Send a raw command to a running instance",
	Long: `Send one command to an already running instance over its control socket.
With --event the text is sent as a script event ("event <text>").`,
	Example: `  mgenctl -i lab send listen udp 5000
  mgenctl -i lab send --event "1.0 on 1 udp dst 127.0.0.1/5000 periodic [1 1024]"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ch, err := ipc.Dial(cfg.Generator.SocketDir, cfg.Generator.Instance)
		if err != nil {
			return err
		}
		defer ch.Close()

		text := strings.Join(args, " ")
		if sendAsEvent {
			return ch.SendEvent(text)
		}
		return ch.Send(text)
	},
}

func init() {
	sendCmd.Flags().BoolVarP(&sendAsEvent, "event", "e", false, "send as a script event")
}
