// Package extractor runs batch decompression of input files through a
// reader, processor, writer and checkpointer pipeline.
package extractor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/checkpoint"
	"github.com/dselans/unflate/checkpoint/types"
	"github.com/dselans/unflate/config"
	"github.com/dselans/unflate/container"
	"github.com/dselans/unflate/destination"
	"github.com/dselans/unflate/inflate"
)

const shutdownTimeout = 5 * time.Second

type Extractor struct {
	cfg  *config.Config
	log  *logrus.Entry
	cp   *types.Checkpoint // nil when checkpointing is disabled
	dest destination.Destination
	dec  *inflate.Decompressor
	opts *container.Options
	bar  *pb.ProgressBar

	checksums   map[string]string // checksum -> first path seen
	checksumsMu *sync.Mutex

	last time.Time
}

func New(ctx context.Context, cfg *config.Config) (*Extractor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	dest, err := destination.New(ctx, cfg.TOML.Destination, cfg.CLI.Extract.DryRun)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create destination")
	}

	return newExtractor(cfg, dest)
}

func newExtractor(cfg *config.Config, dest destination.Destination) (*Extractor, error) {
	enc, err := container.ParseEncoding(cfg.TOML.Source.Encoding)
	if err != nil {
		return nil, err
	}

	format, err := container.ParseFormat(cfg.TOML.Source.Container)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		cfg:  cfg,
		log:  logrus.WithField("pkg", "extractor"),
		dest: dest,
		dec: inflate.New(&inflate.Config{
			MaxOutputSize: cfg.TOML.Config.MaxOutputSize,
			Log:           logrus.WithField("pkg", "inflate"),
		}),
		opts: &container.Options{
			Encoding:  enc,
			Format:    format,
			SkipBytes: cfg.TOML.Source.SkipBytes,
		},
		checksums:   make(map[string]string),
		checksumsMu: &sync.Mutex{},
	}

	if !cfg.TOML.Config.DisableCheckpointing {
		if cfg.CLI.Extract.DisableResume {
			e.cp = types.New(cfg.CLI.Extract.Files)
		} else {
			// Load checkpoint (or create if it doesn't exist)
			e.cp, err = checkpoint.Load(cfg.TOML.Config.CheckpointFile, cfg.CLI.Extract.Files)
			if err != nil {
				return nil, errors.Wrap(err, "unable to load checkpoint file")
			}
		}
	}

	e.bar = pb.New(len(cfg.CLI.Extract.Files))
	e.bar.SetWriter(os.Stderr)

	return e, nil
}

// Run extracts every configured input file. A cancelled shutdownCtx stops the
// run early and marks the report as interrupted.
func (e *Extractor) Run(shutdownCtx context.Context) (*Report, error) {
	startedAt := time.Now()
	numWorkers := e.cfg.TOML.Config.NumWorkers

	ctx, cancel := context.WithCancel(shutdownCtx)
	defer cancel()

	report := &Report{}

	errCh := make(chan error, numWorkers+3)
	jobCh := make(chan *ProcessorJob, numWorkers)
	wjCh := make(chan *WriterJob, numWorkers)
	cpCh := make(chan *CheckpointJob, 1000)

	procWg := &sync.WaitGroup{}
	wg := &sync.WaitGroup{}

	if !e.cfg.CLI.Quiet {
		e.bar.Start()
	}

	// Launch reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobCh)

		if err := e.runReader(ctx, jobCh, report); err != nil {
			errCh <- errors.Wrap(err, "error in reader")
		}
	}()

	// Launch processors
	for i := 0; i < numWorkers; i++ {
		procWg.Add(1)

		go func(id int) {
			defer procWg.Done()

			if err := e.runProcessor(ctx, id, jobCh, wjCh, report); err != nil {
				errCh <- errors.Wrapf(err, "error in processor %d", id)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		procWg.Wait()
		close(wjCh)
	}()

	// Launch writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(cpCh)

		if err := e.runWriter(ctx, wjCh, cpCh, report); err != nil {
			errCh <- errors.Wrap(err, "error in writer")
		}
	}()

	// Launch checkpointer; it drains cpCh until the writer closes it
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := e.runCheckpointer(cpCh); err != nil {
			errCh <- errors.Wrap(err, "error in checkpointer")
		}
	}()

	runErr := e.wait(ctx, cancel, wg, errCh)

	if e.bar.IsStarted() {
		e.bar.Finish()
	}

	report.resolveDuplicates()
	report.sort()
	report.Duration = time.Since(startedAt)
	report.Interrupted = shutdownCtx.Err() != nil

	if runErr != nil {
		return report, runErr
	}

	if e.cp != nil && !report.Interrupted {
		e.cp.MarkCompleted()

		if err := e.cp.Save(e.cfg.TOML.Config.CheckpointFile); err != nil {
			return report, errors.Wrap(err, "unable to save final checkpoint")
		}
	}

	e.log.Debugf("extractor run completed in %s", report.Duration)

	return report, nil
}

// wait blocks until every pipeline goroutine has exited. The first error
// cancels the rest of the pipeline.
func (e *Extractor) wait(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, errCh <-chan error) error {
	doneCh := make(chan struct{})

	go func() {
		wg.Wait()
		close(doneCh)
	}()

	var runErr error

	setErr := func(err error) {
		if runErr == nil {
			runErr = err
			cancel()
		}
	}

	var timeout <-chan time.Time

	ctxDone := ctx.Done()

MAIN:
	for {
		select {
		case err := <-errCh:
			setErr(err)
		case <-ctxDone:
			e.log.Debug("received context done, waiting for workers to stop")
			ctxDone = nil
			timeout = time.After(shutdownTimeout)
		case <-timeout:
			e.log.Warn("timed out waiting for workers and/or checkpointer to exit")
			return errors.New("timed out waiting for workers and/or checkpointer to exit")
		case <-doneCh:
			break MAIN
		}
	}

	// Pick up errors sent right before the last goroutine exited
	for {
		select {
		case err := <-errCh:
			setErr(err)
		default:
			return runErr
		}
	}
}

func (e *Extractor) Close() error {
	return e.dest.Close()
}
