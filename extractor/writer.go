package extractor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/checkpoint/types"
	"github.com/dselans/unflate/destination"
)

type CheckpointJob struct {
	Path  string
	Entry *types.Entry
}

func (e *Extractor) runWriter(shutdownCtx context.Context, writerCh <-chan *WriterJob, cpCh chan<- *CheckpointJob, report *Report) error {
	llog := e.log.WithFields(logrus.Fields{
		"method": "runWriter",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	var numWritten int

MAIN:
	for {
		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case job, open := <-writerCh:
			if !open {
				llog.Debug("writer channel closed - exiting writer")
				break MAIN
			}

			location, err := e.writeJob(shutdownCtx, job)
			if err != nil {
				if shutdownCtx.Err() != nil {
					break MAIN
				}

				if e.cfg.CLI.Extract.FailFast {
					return errors.Wrapf(err, "unable to write '%s'", job.Path)
				}

				llog.Errorf("error writing '%s': %v", job.Path, err)
				report.add(&FileResult{Path: job.Path, Status: StatusFailed, InputSize: job.InputSize, Err: err})
				e.bar.Increment()

				continue
			}

			report.add(&FileResult{
				Path:       job.Path,
				Status:     StatusExtracted,
				Format:     string(job.Result.Format),
				Blocks:     len(job.Result.Blocks),
				InputSize:  job.InputSize,
				OutputSize: len(job.Result.Data),
				Location:   location,
			})
			e.bar.Increment()

			// The checkpointer drains cpCh until it is closed
			cpCh <- &CheckpointJob{
				Path: job.Path,
				Entry: &types.Entry{
					Checksum:    job.Checksum,
					OutputSize:  len(job.Result.Data),
					Location:    location,
					CompletedAt: time.Now(),
				},
			}

			numWritten++
		}
	}

	llog.Debugf("handled '%d' jobs", numWritten)

	return nil
}

func (e *Extractor) writeJob(ctx context.Context, j *WriterJob) (string, error) {
	return e.dest.Write(ctx, &destination.Payload{
		Source:   j.Path,
		Checksum: j.Checksum,
		Format:   string(j.Result.Format),
		Data:     j.Result.Data,
	})
}
