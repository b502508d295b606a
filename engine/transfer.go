package engine

import (
	"context"
	"encoding/hex"

	"github.com/Feustey/rgbproof"
	"github.com/Feustey/rgbproof/signer"
)

// TransferRecord is one line of a contract history. Txid is a truncated
// content hash (genesis) or transition commitment.
type TransferRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp uint64 `json:"timestamp"`
	Txid      string `json:"txid"`
}

// TransferProof closes the contract's current seal over fromOutpoint and
// binds it to a new seal on toOutpoint. fromOutpoint must be the current
// seal; it may only be arbitrary while the contract has no seal yet, in
// which case it binds with a zero blinding factor. The amount is recorded
// in the log only.
func (e *Engine) TransferProof(ctx context.Context, contractID, fromOutpoint, toOutpoint string, amount uint64) (string, error) {
	from, err := rgbproof.ParseOutpoint(fromOutpoint)
	if err != nil {
		return "", newErr(KindTransfer, err, "from outpoint")
	}
	to, err := rgbproof.ParseOutpoint(toOutpoint)
	if err != nil {
		return "", newErr(KindTransfer, err, "to outpoint")
	}
	if from == to {
		return "", newErr(KindTransfer, nil, "from and to outpoints are both %s", from)
	}
	toSeal, err := rgbproof.NewSeal(to)
	if err != nil {
		return "", newErr(KindSignature, err, "draw blinding")
	}

	e.Lock()
	defer e.Unlock()

	c, err := e.lookup(contractID)
	if err != nil {
		return "", newErr(KindTransfer, err, "transfer")
	}
	if c.SpentSeal(from) {
		return "", newErr(KindTransfer, nil, "seal %s already spent", from)
	}
	if c.SpentSeal(to) || (c.Genesis.Seal != nil && c.Genesis.Seal.Outpoint() == to) {
		return "", newErr(KindTransfer, nil, "seal %s was used before", to)
	}

	fromSeal := rgbproof.Seal{Txid: from.Txid, Vout: from.Vout}
	switch {
	case c.CurrentSeal == nil:
	case c.CurrentSeal.Outpoint() == from:
		fromSeal.Blinding = c.CurrentSeal.Blinding
	default:
		return "", newErr(KindTransfer, nil, "seal mismatch: %s is not the current seal %s",
			from, c.CurrentSeal.Outpoint())
	}

	commitment := rgbproof.TransitionCommitment(fromSeal, toSeal, contractID)
	sig, err := e.signer.Sign(commitment[:])
	if err != nil {
		return "", newErr(KindSignature, err, "sign transition")
	}

	prev := c.Clone()
	c.Transitions = append(c.Transitions, rgbproof.StateTransition{
		FromSeal:   fromSeal,
		ToSeal:     toSeal,
		Commitment: commitment,
		Sig:        sig,
		Timestamp:  e.timestamp(),
	})
	cur := toSeal
	c.CurrentSeal = &cur

	if err := e.persistLocked(ctx, func() { e.contracts[contractID] = prev }); err != nil {
		return "", err
	}

	transferID := rgbproof.TransferID(commitment)
	e.log.Infof("State transition %s for contract %s...: %s -> %s (amount=%d)",
		transferID, short(contractID), from, to, amount)
	return transferID, nil
}

// GetContractHistory returns the genesis pseudo-record followed by every
// transition in order.
func (e *Engine) GetContractHistory(contractID string) ([]TransferRecord, error) {
	e.RLock()
	defer e.RUnlock()

	c, err := e.lookup(contractID)
	if err != nil {
		return nil, newErr(KindStorage, err, "get contract history")
	}

	to := rgbproof.LocalSentinel
	if c.Genesis.Seal != nil {
		to = c.Genesis.Seal.Outpoint().String()
	}
	records := make([]TransferRecord, 0, 1+len(c.Transitions))
	records = append(records, TransferRecord{
		From:      rgbproof.IssuerSentinel,
		To:        to,
		Timestamp: c.Genesis.Timestamp,
		Txid:      hex.EncodeToString(c.Genesis.ContentHash[:16]),
	})
	for _, t := range c.Transitions {
		records = append(records, TransferRecord{
			From:      t.FromSeal.Outpoint().String(),
			To:        t.ToSeal.Outpoint().String(),
			Timestamp: t.Timestamp,
			Txid:      hex.EncodeToString(t.Commitment[:16]),
		})
	}
	return records, nil
}

// ValidateContract re-derives the whole contract from first principles: the
// contract id, the genesis content hash and signature, and for every
// transition its seal chaining, commitment and signature. It returns nil or
// a Validation-class error naming the first failing step.
func (e *Engine) ValidateContract(contractID string) error {
	e.RLock()
	defer e.RUnlock()

	c, err := e.lookup(contractID)
	if err != nil {
		return newErr(KindStorage, err, "validate contract")
	}
	g := c.Genesis

	contentHash := c.Metadata.ContentHash()
	if contentHash != g.ContentHash {
		return newErr(KindValidation, nil, "content hash does not match metadata")
	}
	if g.Timestamp != c.Metadata.Timestamp {
		return newErr(KindValidation, nil, "genesis timestamp %d differs from metadata %d",
			g.Timestamp, c.Metadata.Timestamp)
	}
	if id := rgbproof.ContractID(contentHash, g.Schema, g.IssuerPubkey, g.Timestamp); id != contractID || g.ContractID != contractID {
		return newErr(KindValidation, nil, "contract id does not match genesis")
	}
	if !signer.Verify(rgbproof.GenesisSigningBytes(contentHash, contractID, g.Timestamp), g.IssuerSig, g.IssuerPubkey) {
		return newErr(KindValidation, nil, "bad genesis signature")
	}

	owner := g.Seal
	for i, t := range c.Transitions {
		if owner != nil && t.FromSeal != *owner {
			return newErr(KindValidation, nil, "transition %d spends %s, owner seal is %s",
				i, t.FromSeal.Outpoint(), owner.Outpoint())
		}
		if rgbproof.TransitionCommitment(t.FromSeal, t.ToSeal, contractID) != t.Commitment {
			return newErr(KindValidation, nil, "transition %d commitment mismatch", i)
		}
		if !signer.Verify(t.Commitment[:], t.Sig, g.IssuerPubkey) {
			return newErr(KindValidation, nil, "transition %d has a bad signature", i)
		}
		next := t.ToSeal
		owner = &next
	}

	switch {
	case owner == nil && c.CurrentSeal != nil:
		return newErr(KindValidation, nil, "current seal set without genesis seal or transition")
	case owner != nil && (c.CurrentSeal == nil || *c.CurrentSeal != *owner):
		return newErr(KindValidation, nil, "current seal is not the last bound seal")
	}
	return nil
}
