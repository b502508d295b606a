package stashdb

import (
	"context"
	"errors"

	"github.com/Feustey/rgbproof"
)

var (
	ErrNotFound    = errors.New("contract not found")
	ErrCorruptFile = errors.New("stash file is corrupt")
)

// Contracts is the whole stash keyed by contract id.
type Contracts map[string]*rgbproof.StoredContract

// StashDB persists the stash as one unit. Save replaces everything that was
// stored before.
type StashDB interface {
	Load(ctx context.Context) (Contracts, error)
	Save(ctx context.Context, contracts Contracts) error
	// Location describes where the stash lives, for logs and health output.
	Location() string
	Close() error
}
