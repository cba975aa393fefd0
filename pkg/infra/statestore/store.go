// Package statestore persists pipeline state as one JSON document per
// edition under <base>/<edition>/state.json. Writes go through a temp file
// and rename so a crash mid-write never corrupts the durable record.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/model"
)

const stateFileName = "state.json"

type store struct {
	base string
}

// New creates a state store rooted at the given base directory.
func New(base string) interfaces.StateStore {
	return &store{base: base}
}

// Dir returns the edition's working directory.
func (s *store) Dir(edition string) string {
	return filepath.Join(s.base, edition)
}

// Load reads the edition's state. A missing file is not an error; it yields
// an empty initial state.
func (s *store) Load(edition string) (*model.PipelineState, error) {
	path := filepath.Join(s.Dir(edition), stateFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.PipelineState{}, nil
		}
		return nil, goerr.Wrap(err, "failed to read state file", goerr.V("path", path))
	}

	var state model.PipelineState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, goerr.Wrap(err, "failed to decode state file", goerr.V("path", path))
	}
	return &state, nil
}

// Save atomically replaces the edition's state file.
func (s *store) Save(edition string, state *model.PipelineState) error {
	dir := s.Dir(edition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create state directory", goerr.V("dir", dir))
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode state")
	}
	payload = append(payload, '\n')

	path := filepath.Join(dir, stateFileName)
	tmp, err := os.CreateTemp(dir, stateFileName+".*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp state file", goerr.V("dir", dir))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to write temp state file", goerr.V("path", tmpPath))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to close temp state file", goerr.V("path", tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to replace state file", goerr.V("path", path))
	}
	return nil
}
