package extractor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ProcessorJob struct {
	Path     string
	Data     []byte
	Checksum string
}

// runReader loads each input file and hands it to the processors, skipping
// files the checkpoint says are already done.
func (e *Extractor) runReader(shutdownCtx context.Context, jobCh chan<- *ProcessorJob, report *Report) error {
	llog := e.log.WithFields(logrus.Fields{
		"method": "runReader",
	})
	llog.Debug("start")
	defer llog.Debug("exit")

	numSent := 0

MAIN:
	for _, path := range e.cfg.CLI.Extract.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			if e.cfg.CLI.Extract.FailFast {
				return errors.Wrapf(err, "unable to read '%s'", path)
			}

			llog.Warnf("unable to read '%s': %s", path, err)
			report.add(&FileResult{Path: path, Status: StatusFailed, Err: err})
			e.bar.Increment()

			continue
		}

		checksum := fmt.Sprintf("%x", sha256.Sum256(data))

		if e.cp != nil && e.cp.Done(path, checksum) {
			entry, _ := e.cp.Get(path)
			e.seen(checksum, path)

			llog.Debugf("'%s' already extracted to '%s', skipping", path, entry.Location)

			report.add(&FileResult{
				Path:       path,
				Status:     StatusResumed,
				InputSize:  len(data),
				OutputSize: entry.OutputSize,
				Location:   entry.Location,
			})
			e.bar.Increment()

			continue
		}

		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case jobCh <- &ProcessorJob{Path: path, Data: data, Checksum: checksum}:
			numSent++
		}
	}

	llog.Debugf("sent '%d' jobs", numSent)

	return nil
}
