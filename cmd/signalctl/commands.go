package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/srediag/plugin-signal/adapter"
	"github.com/srediag/plugin-signal/pkg/signal"
)

func loadConfig(cCtx *cli.Context) (*signal.Config, error) {
	var (
		cfg *signal.Config
		err error
	)
	if path := cCtx.String(ConfigFlag); path != "" {
		cfg, err = signal.LoadConfigFile(path)
	} else {
		cfg, err = signal.LoadConfig()
	}
	if err != nil {
		return nil, err
	}
	if lvl := cCtx.String(LogLevelFlag); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func openFactory(cCtx *cli.Context, opts ...signal.Option) (*signal.Factory, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	return signal.NewFactory(cfg, append(opts, adapter.OTelOptions()...)...)
}

func send(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("send takes exactly one VALUE", 2)
	}
	f, err := openFactory(cCtx)
	if err != nil {
		return err
	}
	defer f.Close()

	channel, raw := cCtx.String(ChannelFlag), cCtx.Args().First()
	switch kind := cCtx.String(KindFlag); kind {
	case kindInt64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %q as int64: %w", raw, err)
		}
		return sendValue(f, channel, v)
	case kindString:
		return sendValue(f, channel, raw)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

func sendValue[T any](f *signal.Factory, channel string, v T) error {
	sig, err := signal.NewCrossProcess[T](f, channel)
	if err != nil {
		return err
	}
	defer sig.Close()
	if err := sig.Send(v); err != nil {
		return err
	}
	logger.Info().Str("channel", channel).Interface("value", v).Msg("sent")
	return nil
}

func recv(cCtx *cli.Context) error {
	f, err := openFactory(cCtx)
	if err != nil {
		return err
	}
	defer f.Close()

	channel, timeout := cCtx.String(ChannelFlag), cCtx.Duration(TimeoutFlag)
	var out string
	switch kind := cCtx.String(KindFlag); kind {
	case kindInt64:
		out, err = recvValue[int64](f, channel, timeout)
	case kindString:
		out, err = recvValue[string](f, channel, timeout)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	if errors.Is(err, signal.ErrTimeout) {
		return cli.Exit(fmt.Sprintf("no value on %s within %s", channel, timeout), 1)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, out)
	return nil
}

func recvValue[T any](f *signal.Factory, channel string, timeout time.Duration) (string, error) {
	sig, err := signal.NewCrossProcess[T](f, channel)
	if err != nil {
		return "", err
	}
	defer sig.Close()
	sub, err := sig.Subscribe()
	if err != nil {
		return "", err
	}
	defer sub.Close()
	v, err := sub.ReceiveTimeout(timeout)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func serve(cCtx *cli.Context) error {
	reg := prometheus.NewRegistry()
	f, err := openFactory(cCtx, signal.WithRegisterer(reg), signal.WithErrorHandler(func(channel string, err error) {
		logger.Error().Err(err).Str("channel", channel).Msg("relay read failed")
	}))
	if err != nil {
		return err
	}
	defer f.Close()

	health := adapter.NewHealthAdapter()
	health.Register("signalctl", f, 10*time.Second)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/live", health.Handler())
	mux.Handle("/ready", health.Handler())
	srv := &http.Server{Addr: cCtx.String(AddrFlag), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info().Str("addr", srv.Addr).Msg("serving metrics and health")

	ctx, cancel := context.WithCancel(cCtx.Context)
	defer cancel()
	go func() {
		if err, ok := <-errCh; ok {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	channel := cCtx.String(ChannelFlag)
	switch kind := cCtx.String(KindFlag); kind {
	case kindInt64:
		err = relayValues[int64](ctx, f, channel)
	case kindString:
		err = relayValues[string](ctx, f, channel)
	default:
		err = fmt.Errorf("unknown kind %q", kind)
	}

	shutdown, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdown); serr != nil && err == nil {
		err = serr
	}
	return err
}

func relayValues[T any](ctx context.Context, f *signal.Factory, channel string) error {
	sig, err := signal.NewCrossProcess[T](f, channel)
	if err != nil {
		return err
	}
	defer sig.Close()
	sub, err := sig.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	logger.Info().Str("channel", channel).Interface("latest", sig.Latest()).Msg("relaying")
	for {
		v, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Info().Str("channel", channel).Interface("value", v).Msg("received")
	}
}
