// Package store persists experiments.
//
// The file-backed store keeps one directory per experiment identifier:
//
//	<root>/<id>/experiment.json   structured record
//	<root>/<id>/notes.md          free-form notes
//
// Both files are replaced atomically (temp file, fsync, rename), so a
// concurrent Load sees either the previous or the new version. A notes
// failure never rolls back the structured record.
package store

import (
	"context"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

// Handle identifies a stored experiment. It is the experiment ID.
type Handle string

// String implements fmt.Stringer.
func (h Handle) String() string { return string(h) }

// Entry summarizes a stored experiment for listings.
type Entry struct {
	Handle    Handle               `json:"handle"`
	Name      string               `json:"name,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Mode      domain.ExecutionMode `json:"mode"`
	Models    []string             `json:"models"`
	Prompts   int                  `json:"prompts"`
	Summary   domain.RunSummary    `json:"summary"`
	Judge     string               `json:"judge,omitempty"`
}

// Store is the persistence contract used by the pipeline and the CLI.
type Store interface {
	// Save writes exp and its notes. It assigns exp.ID and exp.CreatedAt
	// when empty and always refreshes exp.UpdatedAt. A notes failure
	// returns the valid handle together with an ErrNotesWriteFailed error.
	Save(ctx context.Context, exp *domain.Experiment) (Handle, error)

	// Load returns the experiment for h, or ErrNotFound / ErrCorrupt. It
	// never returns a partially populated experiment.
	Load(ctx context.Context, h Handle) (*domain.Experiment, error)

	// List returns every readable experiment, newest first.
	List(ctx context.Context) ([]Entry, error)

	// UpdateNotes replaces the notes of an existing experiment.
	UpdateNotes(ctx context.Context, h Handle, notes string) error

	// Delete removes an experiment and its notes.
	Delete(ctx context.Context, h Handle) error

	// FindByName returns the handle of the newest experiment named name.
	FindByName(ctx context.Context, name string) (Handle, bool, error)
}

func entryFor(exp *domain.Experiment) Entry {
	models := make([]string, len(exp.Configs))
	for i, c := range exp.Configs {
		models[i] = c.ID()
	}
	return Entry{
		Handle:    Handle(exp.ID),
		Name:      exp.Name,
		CreatedAt: exp.CreatedAt,
		UpdatedAt: exp.UpdatedAt,
		Mode:      exp.Mode,
		Models:    models,
		Prompts:   len(exp.Prompts),
		Summary:   exp.Summary,
		Judge:     exp.Judge,
	}
}
