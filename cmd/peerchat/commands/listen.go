package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerchat/internal/session"
)

// listen: start an endpoint, print the descriptor and chat interactively.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Start an endpoint and print the descriptor for a peer to dial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := session.New(cfg)
			if err := o.Init(); err != nil {
				return err
			}
			defer o.Teardown()

			token, err := o.Share()
			if err != nil {
				return err
			}
			fmt.Println("Share this descriptor with your peer:")
			fmt.Println(token)

			return runChat(o)
		},
	}
}
