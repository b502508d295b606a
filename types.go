package rgbproof

import (
	"encoding/hex"
	"fmt"
)

// Hash32 is a 32-byte digest or blinding value. It encodes as lowercase hex
// in JSON so the stash stays readable.
type Hash32 [32]byte

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *Hash32) UnmarshalText(b []byte) error {
	if len(b) != 64 {
		return fmt.Errorf("hash32: want 64 hex chars, got %d", len(b))
	}
	if _, err := hex.Decode(h[:], b); err != nil {
		return fmt.Errorf("hash32: %w", err)
	}
	return nil
}

// Seal is a single-use seal: it binds contract ownership to one bitcoin
// outpoint. The blinding value hides the outpoint inside the commitment.
type Seal struct {
	Txid     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Blinding Hash32 `json:"blinding"`
}

// Outpoint returns the txid:vout the seal is closed over.
func (s Seal) Outpoint() Outpoint {
	return Outpoint{Txid: s.Txid, Vout: s.Vout}
}

// ProofMetadata is the immutable payload of a mentoring proof.
type ProofMetadata struct {
	MentorID  string `json:"mentor_id"`
	MenteeID  string `json:"mentee_id"`
	RequestID string `json:"request_id"`
	Rating    uint8  `json:"rating"`
	Comment   string `json:"comment"`
	Timestamp uint64 `json:"timestamp"`
}

// GenesisOp is the issuance record. Its contract id is derived from the
// content hash, schema, issuer key and timestamp.
type GenesisOp struct {
	ContractID   string `json:"contract_id"`
	Schema       string `json:"schema"`
	IssuerPubkey string `json:"issuer_pubkey"` // 33-byte compressed, hex
	ContentHash  Hash32 `json:"content_hash"`
	Seal         *Seal  `json:"seal,omitempty"`
	IssuerSig    string `json:"issuer_sig"` // 64-byte compact r||s, hex
	Timestamp    uint64 `json:"timestamp"`
}

// StateTransition moves ownership from one seal to the next.
type StateTransition struct {
	FromSeal   Seal   `json:"from_seal"`
	ToSeal     Seal   `json:"to_seal"`
	Commitment Hash32 `json:"commitment"`
	Sig        string `json:"sig"`
	Timestamp  uint64 `json:"timestamp"`
}

// StoredContract is one entry of the stash. Transitions are append-only and
// CurrentSeal is nil until a seal is bound.
type StoredContract struct {
	ContractID  string            `json:"contract_id"`
	Metadata    ProofMetadata     `json:"metadata"`
	Genesis     GenesisOp         `json:"genesis"`
	Transitions []StateTransition `json:"transitions"`
	CurrentSeal *Seal             `json:"current_seal"`
}

// Clone returns a deep copy so callers can mutate or expose it without
// touching the stash entry.
func (c *StoredContract) Clone() *StoredContract {
	if c == nil {
		return nil
	}
	out := *c
	out.Genesis.Seal = cloneSeal(c.Genesis.Seal)
	out.CurrentSeal = cloneSeal(c.CurrentSeal)
	out.Transitions = append([]StateTransition(nil), c.Transitions...)
	return &out
}

// SpentSeal reports whether op was already consumed as the from side of a
// transition.
func (c *StoredContract) SpentSeal(op Outpoint) bool {
	for _, t := range c.Transitions {
		if t.FromSeal.Outpoint() == op {
			return true
		}
	}
	return false
}

func cloneSeal(s *Seal) *Seal {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
