package engine

import (
	"context"
	"sort"

	"github.com/Feustey/rgbproof"
	"github.com/Feustey/rgbproof/signer"
)

// ProofParams are the inputs of an issuance. UTXOSeal is an optional
// "txid:vout" to bind the proof to.
type ProofParams struct {
	MentorID  string
	MenteeID  string
	RequestID string
	Rating    uint8
	Comment   string
	UTXOSeal  string
}

// ProofDetails is the read-only projection of a stored contract.
type ProofDetails struct {
	ContractID  string `json:"contract_id"`
	MentorID    string `json:"mentor_id"`
	MenteeID    string `json:"mentee_id"`
	RequestID   string `json:"request_id"`
	Timestamp   uint64 `json:"timestamp"`
	Rating      uint8  `json:"rating"`
	Comment     string `json:"comment"`
	Signature   string `json:"signature"`
	CurrentSeal string `json:"current_seal,omitempty"`
	Transitions int    `json:"transitions"`
}

// ListFilter narrows ListProofs. Zero values match everything; Limit 0
// means no limit.
type ListFilter struct {
	MentorID string
	MenteeID string
	Limit    int
	Offset   int
}

// CreateProof runs the genesis operation and returns the contract id and the
// issuer signature. Input is validated before any state is touched.
func (e *Engine) CreateProof(ctx context.Context, p ProofParams) (string, string, error) {
	if p.MentorID == "" || p.MenteeID == "" || p.RequestID == "" {
		return "", "", newErr(KindContractCreation, nil, "mentor, mentee and request ids must not be empty")
	}
	if p.Rating > rgbproof.MaxRating {
		return "", "", newErr(KindContractCreation, nil, "rating %d out of range 0..%d", p.Rating, rgbproof.MaxRating)
	}
	var seal *rgbproof.Seal
	if p.UTXOSeal != "" {
		op, err := rgbproof.ParseOutpoint(p.UTXOSeal)
		if err != nil {
			return "", "", newErr(KindContractCreation, err, "utxo seal")
		}
		s, err := rgbproof.NewSeal(op)
		if err != nil {
			return "", "", newErr(KindSignature, err, "draw blinding")
		}
		seal = &s
	}

	ts := e.timestamp()
	meta := rgbproof.ProofMetadata{
		MentorID:  p.MentorID,
		MenteeID:  p.MenteeID,
		RequestID: p.RequestID,
		Rating:    p.Rating,
		Comment:   p.Comment,
		Timestamp: ts,
	}
	pubHex := e.signer.PubKeyHex()
	contentHash := meta.ContentHash()
	contractID := rgbproof.ContractID(contentHash, rgbproof.SchemaID, pubHex, ts)

	sig, err := e.signer.Sign(rgbproof.GenesisSigningBytes(contentHash, contractID, ts))
	if err != nil {
		return "", "", newErr(KindSignature, err, "sign genesis")
	}

	stored := &rgbproof.StoredContract{
		ContractID: contractID,
		Metadata:   meta,
		Genesis: rgbproof.GenesisOp{
			ContractID:   contractID,
			Schema:       rgbproof.SchemaID,
			IssuerPubkey: pubHex,
			ContentHash:  contentHash,
			Seal:         seal,
			IssuerSig:    sig,
			Timestamp:    ts,
		},
		Transitions: []rgbproof.StateTransition{},
	}
	if seal != nil {
		cur := *seal
		stored.CurrentSeal = &cur
	}

	e.Lock()
	defer e.Unlock()
	// Same content, issuer and second yield the same id. A retry of the
	// same issuance gets the stored proof back; signing is deterministic so
	// this is what a fresh genesis would have produced.
	if prev, ok := e.contracts[contractID]; ok {
		if prev.Genesis.ContentHash != contentHash || !sameSeal(prev.Genesis.Seal, seal) {
			return "", "", newErr(KindContractCreation, nil, "contract %s already issued", contractID)
		}
		e.log.Debugf("Genesis %s... already issued, returning stored proof", short(contractID))
		return contractID, prev.Genesis.IssuerSig, nil
	}
	e.contracts[contractID] = stored
	err = e.persistLocked(ctx, func() { delete(e.contracts, contractID) })
	if err != nil {
		return "", "", err
	}

	e.log.Infof("Genesis created: %s... (mentor=%s mentee=%s rating=%d sealed=%v)",
		short(contractID), p.MentorID, p.MenteeID, p.Rating, seal != nil)
	return contractID, sig, nil
}

// VerifyProof reports whether signature is the valid issuer signature of
// contractID. An unknown contract, a contract whose stored metadata no longer
// reproduces its id, and a bad or malformed signature all report false.
func (e *Engine) VerifyProof(contractID, signature string) bool {
	e.RLock()
	defer e.RUnlock()

	c, err := e.lookup(contractID)
	if err != nil {
		return false
	}
	contentHash := c.Metadata.ContentHash()
	expected := rgbproof.ContractID(contentHash, c.Genesis.Schema, c.Genesis.IssuerPubkey, c.Metadata.Timestamp)
	if expected != contractID {
		e.log.Warnf("Contract id mismatch for %s (stored metadata recomputes to %s)", contractID, expected)
		return false
	}
	data := rgbproof.GenesisSigningBytes(contentHash, contractID, c.Metadata.Timestamp)
	return signer.Verify(data, signature, c.Genesis.IssuerPubkey)
}

// GetProofDetails returns a Storage-class error for unknown contracts.
func (e *Engine) GetProofDetails(contractID string) (*ProofDetails, error) {
	e.RLock()
	defer e.RUnlock()

	c, err := e.lookup(contractID)
	if err != nil {
		return nil, newErr(KindStorage, err, "get proof details")
	}
	d := details(c)
	return &d, nil
}

// ListProofs returns matching proofs ordered by timestamp, then contract id.
func (e *Engine) ListProofs(f ListFilter) []ProofDetails {
	e.RLock()
	out := make([]ProofDetails, 0, len(e.contracts))
	for _, c := range e.contracts {
		if f.MentorID != "" && c.Metadata.MentorID != f.MentorID {
			continue
		}
		if f.MenteeID != "" && c.Metadata.MenteeID != f.MenteeID {
			continue
		}
		out = append(out, details(c))
	}
	e.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ContractID < out[j].ContractID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []ProofDetails{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Count is the number of contracts in the stash.
func (e *Engine) Count() int {
	e.RLock()
	defer e.RUnlock()
	return len(e.contracts)
}

func sameSeal(a, b *rgbproof.Seal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Outpoint() == b.Outpoint()
}

func details(c *rgbproof.StoredContract) ProofDetails {
	d := ProofDetails{
		ContractID:  c.ContractID,
		MentorID:    c.Metadata.MentorID,
		MenteeID:    c.Metadata.MenteeID,
		RequestID:   c.Metadata.RequestID,
		Timestamp:   c.Metadata.Timestamp,
		Rating:      c.Metadata.Rating,
		Comment:     c.Metadata.Comment,
		Signature:   c.Genesis.IssuerSig,
		Transitions: len(c.Transitions),
	}
	if c.CurrentSeal != nil {
		d.CurrentSeal = c.CurrentSeal.Outpoint().String()
	}
	return d
}
