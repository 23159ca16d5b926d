package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theapemachine/qrefresh"
)

var CLI struct {
	Config   string `short:"c" help:"Configuration file path" type:"path"`
	Verbose  bool   `short:"v" help:"Enable debug logging"`
	Simulate bool   `help:"Talk to the in-memory device simulator instead of the serial port"`
	Format   string `short:"f" help:"Status output format" enum:"json,yaml,msgpack" default:"json"`

	Run struct {
		Circuit string `arg:"" help:"YAML circuit file" type:"existingfile"`
	} `cmd:"" help:"Run a circuit with the refresh loop active and print the measurements"`

	Monitor struct {
		Every       time.Duration `help:"Status report interval" default:"5s"`
		MetricsAddr string        `help:"Serve Prometheus metrics on this address" default:":9464"`
	} `cmd:"" help:"Keep the configured qubits refreshed and report status periodically"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("qrefresh"),
		kong.Description("Adaptive refresh and error-correction controller for qubit state records"),
	)

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if CLI.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error

	switch kctx.Command() {
	case "run <circuit>":
		err = runCircuit(ctx, logger)
	case "monitor":
		err = runMonitor(ctx, logger)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("qrefresh failed", "err", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, logger *log.Logger, metrics *qrefresh.Metrics) (*qrefresh.Controller, error) {
	config, err := qrefresh.LoadConfig(CLI.Config)
	if err != nil {
		return nil, err
	}

	var ch qrefresh.Channel

	if CLI.Simulate {
		logger.Info("using device simulator")
		ch = qrefresh.NewSimulator()
	} else {
		port, err := qrefresh.OpenSerial(ctx, config, logger)
		if err != nil {
			return nil, err
		}
		ch = port
	}

	controller, err := qrefresh.NewController(ctx, ch, config,
		qrefresh.WithLogger(logger),
		qrefresh.WithMetrics(metrics),
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	if err := controller.Bootstrap(ctx); err != nil {
		controller.Close()
		return nil, err
	}

	return controller, nil
}

func runCircuit(ctx context.Context, logger *log.Logger) error {
	f, err := os.Open(CLI.Run.Circuit)
	if err != nil {
		return err
	}
	defer f.Close()

	circuit, err := qrefresh.LoadCircuit(f)
	if err != nil {
		return err
	}

	controller, err := connect(ctx, logger, qrefresh.NewMetrics())
	if err != nil {
		return err
	}
	defer controller.Close()

	// Qubits the circuit mentions but the config does not declare start in |0⟩.
	for _, step := range circuit {
		for _, id := range []string{step.Qubit, step.Target} {
			if _, ok := controller.Space().Get(id); id == "" || ok {
				continue
			}
			if _, err := controller.CreateQubit(id, 1, 0); err != nil {
				return err
			}
		}
	}

	controller.Start()

	results, err := controller.RunCircuit(ctx, circuit)
	if err != nil {
		return err
	}

	for id, outcome := range results {
		fmt.Printf("%s = %d\n", id, outcome)
	}

	return qrefresh.EncodeStatus(os.Stdout, CLI.Format, controller.Status())
}

func runMonitor(ctx context.Context, logger *log.Logger) error {
	metrics := qrefresh.NewMetrics()
	registry := prometheus.NewRegistry()

	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	controller, err := connect(ctx, logger, metrics)
	if err != nil {
		return err
	}
	defer controller.Close()

	server := &http.Server{
		Addr:              CLI.Monitor.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	report := func() {
		status := controller.Status()
		metrics.ObserveStatus(status)

		if err := qrefresh.EncodeStatus(os.Stdout, CLI.Format, status); err != nil {
			logger.Error("status report failed", "err", err)
		}
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(CLI.Monitor.Every),
		gocron.NewTask(report),
		gocron.WithName("status-report"),
	); err != nil {
		return fmt.Errorf("scheduling status report: %w", err)
	}

	controller.Start()
	scheduler.Start()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := scheduler.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", "err", err)
	}

	return server.Shutdown(shutdownCtx)
}
