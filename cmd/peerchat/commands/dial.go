package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerchat/internal/session"
)

// dial <descriptor>: connect to a listening peer and chat interactively.
func dialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial <descriptor>",
		Short: "Connect to a peer using its descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := session.New(cfg)
			if err := o.Init(); err != nil {
				return err
			}
			defer o.Teardown()

			if err := o.Connect(args[0]); err != nil {
				return fmt.Errorf("connecting: %w", err)
			}
			fmt.Println("Handshake sent. Messages flow once the peer answers.")

			return runChat(o)
		},
	}
}
