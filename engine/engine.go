// Package engine issues, verifies and transfers proof-of-impact contracts
// and keeps them in a persistent local stash.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/Feustey/rgbproof"
	"github.com/Feustey/rgbproof/chainwatcher"
	"github.com/Feustey/rgbproof/engine/stashdb"
	"github.com/Feustey/rgbproof/signer"
)

type Config struct {
	DataDir string
	// Network is a label for logs and health output.
	Network string
	// IssuerKeyHex is used, and persisted, only when the key store is empty.
	IssuerKeyHex string

	// Checker confirms txids on chain. Nil disables on-chain checks.
	Checker chainwatcher.Checker

	// KeyStore defaults to a file store in DataDir.
	KeyStore signer.KeyStore
	// Stash defaults to a JSON file in DataDir.
	Stash stashdb.StashDB

	Log      slog.Logger
	StashLog slog.Logger

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// Engine is the proof-contract façade. The stash map is guarded by the
// embedded lock: reads share it, create and transfer hold it exclusively
// across the map mutation and the stash rewrite.
type Engine struct {
	sync.RWMutex

	log     slog.Logger
	dataDir string
	network string
	signer  *signer.Signer
	checker chainwatcher.Checker
	db      stashdb.StashDB
	now     func() time.Time

	contracts stashdb.Contracts
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, newErr(KindConfiguration, nil, "empty data dir")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, newErr(KindConfiguration, err, "create data dir %s", cfg.DataDir)
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	network := cfg.Network
	if network == "" {
		network = "regtest"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ks := cfg.KeyStore
	if ks == nil {
		ks = signer.NewFileKeyStore(cfg.DataDir)
	}
	sgn, src, err := signer.LoadOrCreate(ks, cfg.IssuerKeyHex, log)
	if err != nil {
		return nil, newErr(KindConfiguration, err, "load issuer key")
	}

	db := cfg.Stash
	if db == nil {
		db, err = stashdb.NewJSONFile(cfg.DataDir, cfg.StashLog)
		if err != nil {
			return nil, newErr(KindConfiguration, err, "open stash")
		}
	}
	contracts, err := db.Load(ctx)
	if err != nil {
		return nil, newErr(KindStorage, err, "load stash from %s", db.Location())
	}

	e := &Engine{
		log:       log,
		dataDir:   cfg.DataDir,
		network:   network,
		signer:    sgn,
		checker:   cfg.Checker,
		db:        db,
		now:       now,
		contracts: contracts,
	}

	explorer := "disabled"
	if cfg.Checker != nil {
		explorer = "enabled"
	}
	log.Infof("Proof engine ready: network=%s pubkey=%s... key=%s contracts=%d explorer=%s",
		network, sgn.PubKeyHex()[:16], src, len(contracts), explorer)
	return e, nil
}

// IssuerPubkey returns the compressed issuer public key in hex.
func (e *Engine) IssuerPubkey() string { return e.signer.PubKeyHex() }

func (e *Engine) Network() string { return e.network }

func (e *Engine) DataDir() string { return e.dataDir }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) timestamp() uint64 {
	ts := e.now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// persistLocked writes the stash. On failure it calls undo so the map goes
// back to what is on disk. Caller holds the write lock.
func (e *Engine) persistLocked(ctx context.Context, undo func()) error {
	if err := e.db.Save(ctx, e.contracts); err != nil {
		undo()
		return newErr(KindStorage, err, "save stash to %s", e.db.Location())
	}
	return nil
}

// lookup returns the stash entry for id. Caller holds the lock.
func (e *Engine) lookup(id string) (*rgbproof.StoredContract, error) {
	c, ok := e.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", stashdb.ErrNotFound, id)
	}
	return c, nil
}

func short(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
