package chainwatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
)

// DefaultTimeout bounds a single explorer request.
const DefaultTimeout = 10 * time.Second

// ErrTransport means the explorer could not be reached, as opposed to the
// explorer answering that the transaction does not exist.
var ErrTransport = errors.New("explorer transport error")

// Checker answers whether a transaction is known to the chain.
type Checker interface {
	TxExists(ctx context.Context, txid string) (bool, error)
}

// Esplora checks transactions against an Esplora-compatible REST API with a
// single GET {base}/tx/{txid}. 2xx means found, any other status means not
// found, and transport failures are reported as ErrTransport.
type Esplora struct {
	log  slog.Logger
	base string
	http *http.Client
}

// NewEsplora validates baseURL and returns a checker. timeout <= 0 selects
// DefaultTimeout.
func NewEsplora(log slog.Logger, baseURL string, timeout time.Duration) (*Esplora, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("bad explorer url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("bad explorer url %q: want absolute http(s) url", baseURL)
	}
	if log == nil {
		log = slog.Disabled
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Esplora{
		log:  log,
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (e *Esplora) BaseURL() string { return e.base }

func (e *Esplora) TxExists(ctx context.Context, txid string) (bool, error) {
	// Well formed ids are normalised; anything else is passed through
	// escaped and left for the explorer to reject.
	id := strings.TrimSpace(txid)
	var h chainhash.Hash
	if len(id) == chainhash.MaxHashStringSize && chainhash.Decode(&h, id) == nil {
		id = strings.ToLower(id)
	}
	reqURL := e.base + "/tx/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: GET %s: %v", ErrTransport, reqURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.log.Debugf("Transaction %s confirmed by explorer", id)
		return true, nil
	}
	e.log.Warnf("Transaction %s not found by explorer (HTTP %d)", id, resp.StatusCode)
	return false, nil
}
