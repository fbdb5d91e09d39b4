package extractor

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/container"
)

var errDuplicate = errors.New("duplicate input")

// duplicateError names the file that first had the same content
type duplicateError struct {
	first string
}

func (d *duplicateError) Error() string {
	return fmt.Sprintf("%s, same content as '%s'", errDuplicate, d.first)
}

func (d *duplicateError) Is(target error) bool {
	return target == errDuplicate
}

type WriterJob struct {
	Path      string
	Checksum  string
	InputSize int
	Result    *container.Result
}

func (e *Extractor) runProcessor(
	shutdownCtx context.Context,
	id int,
	jobCh <-chan *ProcessorJob,
	wjCh chan<- *WriterJob,
	report *Report,
) error {
	llog := e.log.WithFields(logrus.Fields{
		"method": "runProcessor",
		"id":     id,
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	var numProcessed int

MAIN:
	for {
		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case job, open := <-jobCh:
			if !open {
				llog.Debug("job channel closed - exiting processor")
				break MAIN
			}

			numProcessed++

			wj, err := e.processJob(job)
			if err != nil {
				var dup *duplicateError
				if errors.As(err, &dup) {
					llog.Debugf("skipping '%s': %s", job.Path, err)
					report.add(&FileResult{
						Path:        job.Path,
						Status:      StatusDuplicate,
						InputSize:   len(job.Data),
						DuplicateOf: dup.first,
						Err:         err,
					})
					e.bar.Increment()

					continue
				}

				if e.cfg.CLI.Extract.FailFast {
					return errors.Wrapf(err, "unable to decode '%s'", job.Path)
				}

				llog.Warnf("unable to decode '%s': %s", job.Path, err)
				report.add(&FileResult{Path: job.Path, Status: StatusFailed, InputSize: len(job.Data), Err: err})
				e.bar.Increment()

				continue
			}

			select {
			case <-shutdownCtx.Done():
				break MAIN
			case wjCh <- wj:
			}
		}
	}

	llog.Debugf("handled '%d' jobs", numProcessed)

	return nil
}

func (e *Extractor) processJob(j *ProcessorJob) (*WriterJob, error) {
	llog := e.log.WithFields(logrus.Fields{
		"method": "processJob",
		"path":   j.Path,
	})

	if !e.cfg.TOML.Config.DisableDupecheck {
		if first, ok := e.seen(j.Checksum, j.Path); ok {
			return nil, &duplicateError{first: first}
		}
	}

	res, err := container.Decode(j.Data, e.opts, e.dec)
	if err != nil {
		return nil, err
	}

	llog.Debugf("decoded %d bytes into %d (%s, %d blocks)", len(j.Data), len(res.Data), res.Format, len(res.Blocks))

	if res.Trailing > 0 {
		llog.Warnf("ignoring %d trailing bytes", res.Trailing)
	}

	return &WriterJob{
		Path:      j.Path,
		Checksum:  j.Checksum,
		InputSize: len(j.Data),
		Result:    res,
	}, nil
}

// seen records checksum for path and reports the path it was first seen
// with, if any.
func (e *Extractor) seen(checksum, path string) (string, bool) {
	e.checksumsMu.Lock()
	defer e.checksumsMu.Unlock()

	if first, ok := e.checksums[checksum]; ok {
		return first, true
	}

	e.checksums[checksum] = path

	return "", false
}
