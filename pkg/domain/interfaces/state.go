package interfaces

import "github.com/cryptad/update-releaser/pkg/domain/model"

// StateStore persists per-edition pipeline state. Load returns an empty
// state when none exists; Save replaces the record atomically so a crash
// mid-write never corrupts it.
type StateStore interface {
	Load(edition string) (*model.PipelineState, error)
	Save(edition string, state *model.PipelineState) error

	// Dir returns the working directory that holds the edition's files
	// (assets, changelogs, descriptor, reports).
	Dir(edition string) string
}
