// Command signalctl sends, receives and relays values on cross-process signals.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	ConfigFlag   = "config"
	ChannelFlag  = "channel"
	KindFlag     = "kind"
	TimeoutFlag  = "timeout"
	AddrFlag     = "addr"
	LogLevelFlag = "log-level"

	kindInt64  = "int64"
	kindString = "string"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Str("component", "signalctl").Logger()

func main() {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Fatal().Err(err).Msg("signalctl failed")
	}
}

func newApp() *cli.App {
	channel := &cli.StringFlag{
		Name:     ChannelFlag,
		Aliases:  []string{"c"},
		Usage:    "Channel name shared by all processes",
		Required: true,
	}
	kind := &cli.StringFlag{
		Name:  KindFlag,
		Usage: "Value type: int64 or string",
		Value: kindString,
	}
	return &cli.App{
		Name:  "signalctl",
		Usage: "Inspect and drive cross-process broadcast signals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    ConfigFlag,
				Usage:   "TOML file layered over SIGNAL_* environment settings",
				EnvVars: []string{"SIGNAL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  LogLevelFlag,
				Usage: "Overrides the configured log level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Publish one value",
				ArgsUsage: "VALUE",
				Flags:     []cli.Flag{channel, kind},
				Action:    send,
			},
			{
				Name:  "recv",
				Usage: "Wait for the next value and print it",
				Flags: []cli.Flag{
					channel, kind,
					&cli.DurationFlag{
						Name:  TimeoutFlag,
						Usage: "Give up after this long; negative waits forever",
						Value: time.Second,
					},
				},
				Action: recv,
			},
			{
				Name:  "serve",
				Usage: "Log every value and expose /metrics, /live and /ready",
				Flags: []cli.Flag{
					channel, kind,
					&cli.StringFlag{
						Name:  AddrFlag,
						Usage: "HTTP listen address",
						Value: ":9464",
					},
				},
				Action: serve,
			},
		},
	}
}
