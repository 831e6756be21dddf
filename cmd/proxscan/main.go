package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mastercactapus/proxscan/adb"
	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/config"
	"github.com/mastercactapus/proxscan/logging"
	"github.com/mastercactapus/proxscan/metrics"
	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/store"
	"github.com/mastercactapus/proxscan/telemetry"
)

func main() {
	app := &cli.App{
		Name:  "proxscan",
		Usage: "Proximity sensor threshold test: step an axis and sample the sensor at each position.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file. Must at least set actuator.port or a fake actuator."},
			&cli.BoolFlag{Name: "init", Aliases: []string{"i"}, Usage: "Run the device setup commands first. Needed on the first run after a power cycle."},
			&cli.StringFlag{Name: "addr", Usage: "Serve status, events and metrics on this address."},
			&cli.BoolFlag{Name: "debug", Usage: "Log debug output to the console."},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not wait for operator confirmation."},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "proxscan:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("addr") {
		cfg.HTTP.Addr = c.String("addr")
	}

	log, closeLog, err := logging.New(logging.Options{
		Name:  cfg.Test.Name,
		Dir:   cfg.Test.LogDir,
		Debug: c.Bool("debug"),
	})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closeLog()

	ctx := c.Context
	device := &adb.Client{
		Bin:    cfg.Source.ADB,
		Serial: cfg.Source.Serial,
		Tag:    cfg.Source.Tag,
		Log:    log.Named("adb"),
	}
	if c.Bool("init") {
		log.Info("running init settings...")
		if err := device.Provision(ctx, cfg.Provision.Commands); err != nil {
			return err
		}
	}

	axes, closeActuator, err := openActuator(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeActuator(); err != nil {
			log.Warnw("close actuator", "error", err)
		}
	}()

	format, err := cfg.Format()
	if err != nil {
		return err
	}
	filter, err := telemetry.NewFilter(format)
	if err != nil {
		return err
	}
	var src collect.Source = device
	if cfg.Source.Kind == config.SourceFile {
		src = collect.FileSource{Path: cfg.Source.File}
	}
	col := collect.New(src, filter, log.Named("collect"))

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var op scan.Operator = huhOperator{}
	if c.Bool("yes") {
		op = scan.AutoConfirm{}
	}

	a := newAPI(db, reg, log.Named("http"))
	seq, err := scan.New(cfg.ScanConfig(), axes, col,
		scan.WithOperator(op),
		scan.WithRecorder(db),
		scan.WithObserver(metrics.New(reg)),
		scan.WithObserver(a),
		scan.WithLogger(log.Named("scan")),
	)
	if err != nil {
		return err
	}
	a.seq = seq

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: a}
		go func() {
			log.Infow("serving status", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.Close()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Infow("starting scan", "format", format.Name, "axis", cfg.Axes.Scan, "step", cfg.Scan.Step, "iterations", cfg.Scan.Iterations, "samples", cfg.Scan.Samples)
	res, runErr := seq.Run(ctx)
	if res != nil && len(res.Points) > 0 {
		name := filepath.Join(cfg.Test.LogDir, cfg.Test.Name+"-"+res.RunID+".csv")
		if err := exportCSVFile(name, res); err != nil {
			log.Errorw("export results", "error", err)
		} else {
			log.Infow("results written", "file", name, "points", len(res.Points))
		}
	}
	return runErr
}
