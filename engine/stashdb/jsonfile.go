package stashdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
)

// StashFileName is the stash document inside the data directory.
const StashFileName = "stash.json"

// JSONFile keeps the stash as a single pretty-printed JSON object. Every
// Save writes a temp file in the same directory and renames it over the
// previous document, so a crash leaves either the old or the new stash.
type JSONFile struct {
	dir  string
	path string
	log  slog.Logger
}

func NewJSONFile(dataDir string, log slog.Logger) (*JSONFile, error) {
	if dataDir == "" {
		return nil, errors.New("stashdb: empty data dir")
	}
	if log == nil {
		log = slog.Disabled
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("stashdb: create %s: %w", dataDir, err)
	}
	return &JSONFile{
		dir:  dataDir,
		path: filepath.Join(dataDir, StashFileName),
		log:  log,
	}, nil
}

func (f *JSONFile) Location() string { return f.path }

// Load returns an empty stash when the file does not exist yet.
func (f *JSONFile) Load(ctx context.Context) (Contracts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.log.Debugf("No stash at %s, starting empty", f.path)
		return make(Contracts), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stashdb: read %s: %w", f.path, err)
	}

	contracts := make(Contracts)
	if err := json.Unmarshal(b, &contracts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, f.path, err)
	}
	for id, c := range contracts {
		if c == nil {
			return nil, fmt.Errorf("%w: %s: null entry for %s", ErrCorruptFile, f.path, id)
		}
		if c.ContractID != id {
			return nil, fmt.Errorf("%w: %s: key %s holds contract %s",
				ErrCorruptFile, f.path, id, c.ContractID)
		}
	}
	f.log.Debugf("Loaded %d contract(s) from %s", len(contracts), f.path)
	return contracts, nil
}

func (f *JSONFile) Save(ctx context.Context, contracts Contracts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if contracts == nil {
		contracts = Contracts{}
	}
	b, err := json.MarshalIndent(contracts, "", "  ")
	if err != nil {
		return fmt.Errorf("stashdb: encode: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, StashFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("stashdb: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("stashdb: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("stashdb: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("stashdb: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("stashdb: replace %s: %w", f.path, err)
	}
	f.log.Tracef("Wrote %d contract(s) to %s", len(contracts), f.path)
	return nil
}

func (f *JSONFile) Close() error { return nil }
