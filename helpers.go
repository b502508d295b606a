package rgbproof

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

const (
	// SchemaID identifies the proof schema and its version. It is hashed
	// into every contract id.
	SchemaID = "token4good-mentoring-v1"

	// IssuerSentinel is the "from" label of the genesis history record.
	IssuerSentinel = "issuer"

	// LocalSentinel is the "to" label of a genesis that has no seal.
	LocalSentinel = "local"

	// MaxRating is the highest accepted rating.
	MaxRating = 5
)

var ErrBadOutpoint = errors.New("malformed outpoint")

// Outpoint references output Vout of transaction Txid.
type Outpoint struct {
	Txid string
	Vout uint32
}

func (o Outpoint) String() string {
	return o.Txid + ":" + strconv.FormatUint(uint64(o.Vout), 10)
}

// ParseOutpoint parses "txid:vout" where txid is 64 hex chars and vout is a
// decimal uint32. The txid is returned lowercased.
func ParseOutpoint(s string) (Outpoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Outpoint{}, fmt.Errorf("%w %q: want txid:vout", ErrBadOutpoint, s)
	}
	txid := strings.ToLower(parts[0])
	if len(txid) != chainhash.MaxHashStringSize {
		return Outpoint{}, fmt.Errorf("%w %q: txid must be %d hex chars",
			ErrBadOutpoint, s, chainhash.MaxHashStringSize)
	}
	var h chainhash.Hash
	if err := chainhash.Decode(&h, txid); err != nil {
		return Outpoint{}, fmt.Errorf("%w %q: bad txid: %v", ErrBadOutpoint, s, err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w %q: bad vout: %v", ErrBadOutpoint, s, err)
	}
	return Outpoint{Txid: txid, Vout: uint32(vout)}, nil
}

// ContentHash = SHA256(mentor ":" mentee ":" request ":" rating ":" comment ":" ts_le).
func (m *ProofMetadata) ContentHash() Hash32 {
	h := sha256.New()
	h.Write([]byte(m.MentorID))
	h.Write([]byte{':'})
	h.Write([]byte(m.MenteeID))
	h.Write([]byte{':'})
	h.Write([]byte(m.RequestID))
	h.Write([]byte{':'})
	h.Write([]byte{m.Rating})
	h.Write([]byte{':'})
	h.Write([]byte(m.Comment))
	h.Write([]byte{':'})
	h.Write(le64(m.Timestamp))
	var out Hash32
	h.Sum(out[:0])
	return out
}

// ContractID = hex(SHA256(content_hash || schema || issuer_pubkey_hex || ts_le)).
func ContractID(contentHash Hash32, schema, issuerPubkeyHex string, timestamp uint64) string {
	h := sha256.New()
	h.Write(contentHash[:])
	h.Write([]byte(schema))
	h.Write([]byte(issuerPubkeyHex))
	h.Write(le64(timestamp))
	return hex.EncodeToString(h.Sum(nil))
}

// GenesisSigningBytes is the exact layout signed by the issuer at genesis:
// content_hash || contract_id (ascii hex) || ts_le.
func GenesisSigningBytes(contentHash Hash32, contractID string, timestamp uint64) []byte {
	b := make([]byte, 0, len(contentHash)+len(contractID)+8)
	b = append(b, contentHash[:]...)
	b = append(b, contractID...)
	b = append(b, le64(timestamp)...)
	return b
}

// Commitment = SHA256(txid_bytes || vout_le || blinding). A txid that does
// not decode contributes no bytes.
func (s Seal) Commitment() Hash32 {
	txid, _ := hex.DecodeString(s.Txid)
	var vout [4]byte
	binary.LittleEndian.PutUint32(vout[:], s.Vout)

	h := sha256.New()
	h.Write(txid)
	h.Write(vout[:])
	h.Write(s.Blinding[:])
	var out Hash32
	h.Sum(out[:0])
	return out
}

// TransitionCommitment = SHA256(from.commitment || to.commitment || contract_id).
func TransitionCommitment(from, to Seal, contractID string) Hash32 {
	fc, tc := from.Commitment(), to.Commitment()
	h := sha256.New()
	h.Write(fc[:])
	h.Write(tc[:])
	h.Write([]byte(contractID))
	var out Hash32
	h.Sum(out[:0])
	return out
}

// TransferID derives the client-side tracking label of a transition.
func TransferID(commitment Hash32) string {
	return "transfer_" + hex.EncodeToString(commitment[:16])
}

// RandomBlinding draws a fresh blinding factor from crypto/rand.
func RandomBlinding() (Hash32, error) {
	var b Hash32
	if _, err := rand.Read(b[:]); err != nil {
		return Hash32{}, fmt.Errorf("rand: %w", err)
	}
	return b, nil
}

// NewSeal closes a seal over op with a fresh blinding factor.
func NewSeal(op Outpoint) (Seal, error) {
	b, err := RandomBlinding()
	if err != nil {
		return Seal{}, err
	}
	return Seal{Txid: op.Txid, Vout: op.Vout, Blinding: b}, nil
}

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
