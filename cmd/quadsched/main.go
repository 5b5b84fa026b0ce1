package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quadsched/internal/emitter"
	"quadsched/internal/scheduler"
	"quadsched/internal/session"
	"quadsched/pkg/config"
)

type invocation struct {
	cfg     *config.Config
	problem *config.Problem
	debug   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// parse reads flags, the optional config file and the five positional
// arguments. Flags that were given override the file and the environment.
func parse(args []string, stderr io.Writer) (*invocation, error) {
	fs := flag.NewFlagSet("quadsched", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: quadsched [flags] %s\n", config.Usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML run configuration")
	transportKind := fs.String("transport", config.TransportLocal, "transport: local or nats")
	np := fs.Int("np", 4, "ranks in local mode, controller included")
	rank := fs.Int("rank", 0, "this process's rank in nats mode")
	size := fs.Int("size", 0, "group size in nats mode")
	natsURL := fs.String("nats", "", "NATS server URL")
	subject := fs.String("subject", "", "NATS subject prefix")
	timeout := fs.Duration("timeout", 0, "controller receive timeout (0 waits forever)")
	metricsAddr := fs.String("metrics", "", "listen address for /metrics")
	mqttBroker := fs.String("mqtt", "", "MQTT broker host:port for result publication")
	debug := fs.Bool("debug", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = *transportKind
		case "np":
			cfg.NP = *np
		case "rank":
			cfg.NATS.Rank = *rank
		case "size":
			cfg.NATS.Size = *size
		case "nats":
			cfg.NATS.URL = *natsURL
		case "subject":
			cfg.NATS.Subject = *subject
		case "timeout":
			cfg.ReceiveTimeout = *timeout
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "mqtt":
			cfg.MQTT.Broker = *mqttBroker
		}
	})
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := config.ParseArgs(fs.Args())
	if err != nil {
		fs.Usage()
		return nil, err
	}
	return &invocation{cfg: cfg, problem: p, debug: *debug}, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := parse(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	level := slog.LevelInfo
	if inv.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	opts := []scheduler.Option{scheduler.WithMetrics(scheduler.NewMetrics(reg))}
	if inv.cfg.MetricsAddr != "" {
		srv := session.StartMetricsServer(inv.cfg.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	res, err := session.Run(ctx, inv.cfg, inv.problem, logger, opts...)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	if res == nil {
		return 0
	}

	fmt.Fprintf(stdout, "%v\n", res.Value)
	fmt.Fprintf(stderr, "%v\n", res.Elapsed.Seconds())

	if inv.cfg.MQTT.Broker != "" {
		publishResult(inv, *res, logger)
	}
	return 0
}

// publishResult sends the result to MQTT. Failures are logged; the value
// has already been printed.
func publishResult(inv *invocation, res scheduler.Result, logger *slog.Logger) {
	em := emitter.NewMQTTEmitter(inv.cfg.MQTT, logger)
	if err := em.Connect(); err != nil {
		logger.Warn("result not published", "error", err)
		return
	}
	defer em.Disconnect()
	if err := em.Publish(emitter.NewResultMessage(inv.problem, res, time.Now())); err != nil {
		logger.Warn("result not published", "error", err)
	}
}
