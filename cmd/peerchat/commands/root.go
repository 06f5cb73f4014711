package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"peerchat/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:   "peerchat",
		Short: "Peer-to-peer encrypted chat over a direct socket",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfgPath != "" {
				cfg, err = config.Load(cfgPath)
				if err != nil {
					return err
				}
			} else {
				cfg = config.Default()
			}

			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a yaml config file")

	root.AddCommand(listenCmd(), dialCmd())
	return root.Execute()
}
