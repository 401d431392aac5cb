/*
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/forensics-toolkit/bulkscan/config"
	"github.com/forensics-toolkit/bulkscan/internal/logging"
	"github.com/forensics-toolkit/bulkscan/pkg/dispatch"
	"github.com/forensics-toolkit/bulkscan/pkg/imagesource"
	"github.com/forensics-toolkit/bulkscan/pkg/metrics"
	"github.com/forensics-toolkit/bulkscan/pkg/pageiter"
	"github.com/forensics-toolkit/bulkscan/pkg/scanpcap"
	"github.com/forensics-toolkit/bulkscan/pkg/scantext"
	"github.com/forensics-toolkit/bulkscan/pkg/scanwindirs"
)

// Version is stamped by the release build; left at "dev" for local builds.
var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "bulkscan",
		Usage:   "scan a disk image for forensic features",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a TOML config file"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory for feature files", Value: "out"},
			&cli.BoolFlag{Name: "recurse", Aliases: []string{"R"}, Usage: "recurse into a directory of files as the image"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "worker count override"},
		},
		ArgsUsage: "<image-path>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("bulkscan failed")
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("exactly one image path is required", 2)
	}
	imagePath := c.Args().First()
	outDir := c.String("out")

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}

	rotate := &logging.RotateArgs{
		MaxSize:    cfg.RotateLogMaxSize,
		MaxBackups: cfg.RotateLogMaxBackups,
		MaxAge:     cfg.RotateLogMaxAge,
		LocalTime:  cfg.RotateLogLocalTime,
		Compress:   cfg.RotateLogCompress,
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogToStdout, cfg.LogDir, rotate); err != nil {
		return errors.Wrap(err, "failed to set up logger")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %q", outDir)
	}

	logrus.WithFields(logrus.Fields{"image": imagePath, "out": outDir, "workers": cfg.Workers}).
		Infof("bulkscan starting, version %s", Version)

	collector := metrics.New()
	if cfg.EnableMetrics {
		if err := collector.Serve(cfg.MetricsAddr); err != nil {
			logrus.WithError(err).Warn("metrics server failed to start")
		}
	}
	imagesource.SetMetrics(collector)

	src, err := imagesource.Open(imagePath, c.Bool("recurse"))
	if err != nil {
		return errors.Wrapf(err, "open image %q", imagePath)
	}
	defer src.Close()

	reader := config.NewReader(cfg)
	reg := dispatch.NewRegistry(outDir, reader)
	reg.SetMetrics(collector)

	pcapScanner := scanpcap.New(outDir)
	for _, s := range []dispatch.Scanner{scanwindirs.New(collector), pcapScanner, scantext.NewFacebookScanner()} {
		if err := reg.Register(s); err != nil {
			return errors.Wrap(err, "register scanner")
		}
	}
	defer func() {
		if err := reg.Shutdown(); err != nil {
			logrus.WithError(err).Error("scanner shutdown failed")
		}
	}()

	it := pageiter.New(src)
	dispatcher := dispatch.New(reg, cfg.Workers)
	dispatcher.SetMetrics(collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Warn("received interrupt, finishing in-flight pages before exit")
		cancel()
	}()

	start := time.Now()
	if err := dispatcher.Run(ctx, it); err != nil {
		return errors.Wrap(err, "scan failed")
	}

	fmt.Printf("bulkscan complete in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	now := time.Now()
	path := c.String("config")
	if path == "" {
		return config.Default(now), nil
	}
	return config.LoadFile(path, now)
}
