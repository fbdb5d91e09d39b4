package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evalphobia/logrus_sentry"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/cache"
	"github.com/dselans/unflate/config"
	"github.com/dselans/unflate/extractor"
	"github.com/dselans/unflate/server"
)

// Entries kept by the in-process cache when no redis address is configured
const memoryCacheEntries = 1024

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	if err := configureLogging(cfg); err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	if !cfg.CLI.Quiet {
		displayConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.CLI.Command() {
	case config.CommandExtract:
		err = runExtract(ctx, cfg)
	case config.CommandServe:
		err = runServe(ctx, cfg)
	default:
		err = errors.Errorf("unknown command '%s'", cfg.CLI.Ctx.Command())
	}

	if err != nil {
		logrus.Errorf("%s failed: %s", cfg.CLI.Command(), err)
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.TOML.Config.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}

	logrus.SetLevel(level)

	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfg.CLI.DisableColor {
		color.NoColor = true
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}

	if cfg.TOML.Config.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.TOML.Config.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return errors.Wrap(err, "unable to create sentry hook")
		}

		hook.SetRelease(config.VERSION)
		logrus.AddHook(hook)
	}

	return nil
}

func runExtract(ctx context.Context, cfg *config.Config) error {
	e, err := extractor.New(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "unable to create extractor")
	}
	defer e.Close()

	report, err := e.Run(ctx)
	if report != nil && !cfg.CLI.Quiet {
		displayReport(report)
	}

	if err != nil {
		return err
	}

	if n := report.Count(extractor.StatusFailed); n > 0 {
		return errors.Errorf("%d file(s) failed to extract", n)
	}

	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	var c cache.Cache

	ttl := cfg.TOML.Server.CacheTTL.Duration()

	if cfg.TOML.Server.RedisAddress != "" {
		r, err := cache.NewRedis(cfg.TOML.Server.RedisAddress, cfg.TOML.Server.RedisPassword, cfg.TOML.Server.RedisDB, ttl)
		if err != nil {
			return errors.Wrap(err, "unable to create redis cache")
		}
		defer r.Close()

		c = r
	} else {
		c = cache.NewMemory(memoryCacheEntries, ttl)
	}

	s, err := server.New(cfg, c)
	if err != nil {
		return errors.Wrap(err, "unable to create server")
	}

	return s.Run(ctx)
}

func displayReport(r *extractor.Report) {
	in, out := r.Bytes()

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println()

	for _, fr := range r.Results {
		switch fr.Status {
		case extractor.StatusExtracted:
			fmt.Printf("  %s %s -> %s (%s, %d blocks, %d -> %d bytes)\n",
				green("OK  "), fr.Path, fr.Location, fr.Format, fr.Blocks, fr.InputSize, fr.OutputSize)
		case extractor.StatusResumed:
			fmt.Printf("  %s %s -> %s\n", yellow("SKIP"), fr.Path, fr.Location)
		case extractor.StatusDuplicate:
			fmt.Printf("  %s %s: %s\n", yellow("DUPE"), fr.Path, fr.Err)
		case extractor.StatusFailed:
			fmt.Printf("  %s %s: %s\n", red("FAIL"), fr.Path, fr.Err)
		}
	}

	fmt.Println()
	fmt.Printf("extracted: %s  resumed: %s  duplicates: %s  failed: %s\n",
		green(r.Count(extractor.StatusExtracted)),
		yellow(r.Count(extractor.StatusResumed)),
		yellow(r.Count(extractor.StatusDuplicate)),
		red(r.Count(extractor.StatusFailed)))
	fmt.Printf("bytes in: %d  bytes out: %d  took: %s\n", in, out, r.Duration)

	if r.Interrupted {
		fmt.Println(yellow("run was interrupted; rerun to resume"))
	}
}

func displayConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	logrus.Info("unflate settings:")
	logrus.Info("  [CLI]")
	logrus.Infof("  version: %s", config.VERSION)
	logrus.Infof("  command: %s", cfg.CLI.Command())
	logrus.Infof("  debug: %v", cfg.CLI.Debug)
	logrus.Infof("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Infof("  disable color: %v", cfg.CLI.DisableColor)

	switch cfg.CLI.Command() {
	case config.CommandExtract:
		logrus.Infof("  files: %d", len(cfg.CLI.Extract.Files))
		logrus.Infof("  dry run: %v", cfg.CLI.Extract.DryRun)
		logrus.Infof("  disable resume: %v", cfg.CLI.Extract.DisableResume)
		logrus.Infof("  fail fast: %v", cfg.CLI.Extract.FailFast)
	case config.CommandServe:
		logrus.Infof("  listen: %s", cfg.TOML.Server.ListenAddress)
	}

	logrus.Info("")
	logrus.Info("  [CONFIG]")
	logrus.Infof("  config.log_level: %s", cfg.TOML.Config.LogLevel)
	logrus.Infof("  config.num_workers: %d", cfg.TOML.Config.NumWorkers)
	logrus.Infof("  config.checkpoint_file: %s", cfg.TOML.Config.CheckpointFile)
	logrus.Infof("  config.checkpoint_interval: %s", cfg.TOML.Config.CheckpointInterval)
	logrus.Infof("  config.disable_checkpointing: %v", cfg.TOML.Config.DisableCheckpointing)
	logrus.Infof("  config.disable_dupecheck: %v", cfg.TOML.Config.DisableDupecheck)
	logrus.Infof("  config.max_output_size: %d", cfg.TOML.Config.MaxOutputSize)
	logrus.Infof("  config.sentry_dsn set: %v", cfg.TOML.Config.SentryDSN != "")
	logrus.Info("")
	logrus.Info("  [SOURCE]")
	logrus.Infof("  source.encoding: %s", cfg.TOML.Source.Encoding)
	logrus.Infof("  source.container: %s", cfg.TOML.Source.Container)
	logrus.Infof("  source.skip_bytes: %d", cfg.TOML.Source.SkipBytes)
	logrus.Info("")
	logrus.Info("  [DESTINATION]")
	logrus.Infof("  destination.type: %s", cfg.TOML.Destination.Type)

	if cfg.TOML.Destination.Type == "file" {
		logrus.Infof("  destination.dir: %s", cfg.TOML.Destination.Dir)
		logrus.Infof("  destination.suffix: %s", cfg.TOML.Destination.Suffix)
	} else {
		logrus.Infof("  destination.table: %s", cfg.TOML.Destination.Table)
	}

	logrus.Info("")
	logrus.Info("  [SERVER]")
	logrus.Infof("  server.listen_address: %s", cfg.TOML.Server.ListenAddress)
	logrus.Infof("  server.max_body_size: %d", cfg.TOML.Server.MaxBodySize)
	logrus.Infof("  server.redis_address: %s", cfg.TOML.Server.RedisAddress)
	logrus.Infof("  server.cache_ttl: %s", cfg.TOML.Server.CacheTTL)
}
