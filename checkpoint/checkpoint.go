package checkpoint

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/checkpoint/types"
	"github.com/dselans/unflate/validate"
)

// Load reads checkpointFile, creating a fresh checkpoint for sourceFiles if
// it does not exist yet.
func Load(checkpointFile string, sourceFiles []string) (*types.Checkpoint, error) {
	startedAt := time.Now()
	logrus.Debugf("checkpoint loading started at '%s'", startedAt)

	defer func() {
		endedAt := time.Now()
		logrus.Debugf("checkpoint loading took '%s'", endedAt.Sub(startedAt))
	}()

	var createCheckpoint bool

	// Check if checkpoint file exists; if it does not exist - create it,
	// otherwise, try to load it.
	if _, err := os.Stat(checkpointFile); err != nil {
		if os.IsNotExist(err) {
			createCheckpoint = true
		} else {
			return nil, errors.Wrap(err, "unable to stat checkpoint file")
		}
	}

	if createCheckpoint {
		logrus.Debugf("creating checkpoint file '%s'", checkpointFile)
		return create(checkpointFile, sourceFiles)
	}

	logrus.Debugf("loading checkpoint file '%s'", checkpointFile)

	cp, err := load(checkpointFile)
	if err != nil {
		return nil, err
	}

	cp.Lock()
	cp.SourceFiles = sourceFiles
	cp.CompletedAt = nil
	cp.Unlock()

	return cp, nil
}

func load(checkpointFile string) (*types.Checkpoint, error) {
	data, err := os.ReadFile(checkpointFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read checkpoint file")
	}

	cp := &types.Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal checkpoint file")
	}

	cp.Mutex = &sync.Mutex{}

	if cp.Entries == nil {
		cp.Entries = make(map[string]*types.Entry)
	}

	if err := validate.Checkpoint(cp); err != nil {
		return nil, errors.Wrapf(err, "checkpoint file '%s' is invalid", checkpointFile)
	}

	return cp, nil
}

func create(checkpointFile string, sourceFiles []string) (*types.Checkpoint, error) {
	cp := types.New(sourceFiles)

	// Try to write checkpoint file
	if err := cp.Save(checkpointFile); err != nil {
		return nil, errors.Wrap(err, "unable to create checkpoint file")
	}

	return cp, nil
}
