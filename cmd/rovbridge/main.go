// Package main is the entry point of the rovbridge control bridge.
// It loads the configuration, constructs the bridge and runs it until an
// interrupt signal triggers graceful shutdown.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rovbridge/internal/bridge"
	"rovbridge/internal/model"
)

func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	log := newLogger()

	var (
		cfgPath    string
		listenAddr string
		serialDev  string
		baud       int
	)

	root := &cobra.Command{
		Use:          "rovbridge",
		Short:        "Bridge a remote touch joystick to a two-motor vehicle over a serial link",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			// flags override the config file
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("device") {
				cfg.Serial.Device = serialDev
			}
			if cmd.Flags().Changed("baud") {
				cfg.Serial.Baud = baud
			}

			b, err := bridge.New(cfg, log)
			if err != nil {
				return err
			}
			if err := b.Start(); err != nil {
				return err
			}
			log.Info().
				Str("listen", cfg.ListenAddr).
				Str("serial", cfg.Serial.Device).
				Int("baud", cfg.Serial.Baud).
				Msg("rovbridge started")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			log.Info().Msg("shutting down")
			b.Stop()
			return nil
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML configuration file")
	root.Flags().StringVar(&listenAddr, "listen", "", "control server listen address")
	root.Flags().StringVar(&serialDev, "device", "", "serial device path")
	root.Flags().IntVar(&baud, "baud", 0, "serial baudrate")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("rovbridge failed")
		os.Exit(1)
	}
}
