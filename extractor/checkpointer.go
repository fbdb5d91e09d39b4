package extractor

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// runCheckpointer records completed files and periodically writes the
// checkpoint to disk. It runs until cpCh is closed, then flushes.
func (e *Extractor) runCheckpointer(cpCh <-chan *CheckpointJob) error {
	llog := e.log.WithFields(logrus.Fields{
		"method": "runCheckpointer",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	for cp := range cpCh {
		if e.cp == nil {
			continue
		}

		llog.Debugf("received checkpoint for '%s'", cp.Path)

		e.cp.Set(cp.Path, cp.Entry)

		if err := e.saveCheckpoint(false); err != nil {
			llog.Errorf("error saving checkpoint for '%s': %v", cp.Path, err)
		}
	}

	if e.cp == nil {
		return nil
	}

	return e.saveCheckpoint(true)
}

func (e *Extractor) saveCheckpoint(force bool) error {
	llog := e.log.WithFields(logrus.Fields{
		"method": "saveCheckpoint",
	})

	interval := e.cfg.TOML.Config.CheckpointInterval.Duration()

	// Skip checkpoint if it's NOT zero/unset AND we haven't passed CheckpointInterval
	if !force && !e.last.IsZero() && e.last.Add(interval).After(time.Now()) {
		llog.Debugf("skipping checkpoint save, last save was %v ago", time.Since(e.last))
		return nil
	}

	llog.Debugf("saving checkpoint to '%s'", e.cfg.TOML.Config.CheckpointFile)

	if err := e.cp.Save(e.cfg.TOML.Config.CheckpointFile); err != nil {
		return errors.Wrap(err, "unable to save checkpoint")
	}

	// Note that a checkpoint save has occurred
	e.last = time.Now()

	return nil
}
