package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

type HealthReport struct {
	Network       string    `json:"network"`
	DataDir       string    `json:"data_dir"`
	Stash         string    `json:"stash"`
	ContractCount int       `json:"contract_count"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthCheck probes that the data directory is writable and reports the
// in-memory contract count. It never touches the network.
func (e *Engine) HealthCheck(ctx context.Context) (*HealthReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(e.dataDir)
	if err != nil {
		return nil, newErr(KindConfiguration, err, "data dir %s", e.dataDir)
	}
	if !fi.IsDir() {
		return nil, newErr(KindConfiguration, nil, "data dir %s is not a directory", e.dataDir)
	}

	probe := filepath.Join(e.dataDir, "health-"+uuid.NewString()+".tmp")
	var result *multierror.Error
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		result = multierror.Append(result, err)
	}
	if err := os.Remove(probe); err != nil && !errors.Is(err, os.ErrNotExist) {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, newErr(KindConfiguration, err, "data dir %s is not writable", e.dataDir)
	}

	r := &HealthReport{
		Network:       e.network,
		DataDir:       e.dataDir,
		Stash:         e.db.Location(),
		ContractCount: e.Count(),
		CheckedAt:     e.now().UTC(),
	}
	e.log.Debugf("Health OK: %d contract(s) in memory, network %s", r.ContractCount, e.network)
	return r, nil
}

// VerifyUTXOOnchain asks the configured explorer whether txid exists. With
// no explorer configured the check is skipped and reports true. Transport
// failures come back as Esplora-class errors. No engine lock is held.
func (e *Engine) VerifyUTXOOnchain(ctx context.Context, txid string) (bool, error) {
	if e.checker == nil {
		e.log.Debugf("No explorer configured, skipping on-chain check of %s", txid)
		return true, nil
	}
	ok, err := e.checker.TxExists(ctx, txid)
	if err != nil {
		return false, newErr(KindEsplora, err, "check tx %s", txid)
	}
	return ok, nil
}
