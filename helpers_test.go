package rgbproof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxid = "0000000000000000000000000000000000000000000000000000000000000001"

func TestParseOutpoint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Outpoint
		wantErr bool
	}{
		{name: "valid", in: testTxid + ":0", want: Outpoint{Txid: testTxid, Vout: 0}},
		{name: "max vout", in: testTxid + ":4294967295", want: Outpoint{Txid: testTxid, Vout: 4294967295}},
		{name: "uppercase txid", in: strings.ToUpper("ab"+testTxid[2:]) + ":3", want: Outpoint{Txid: "ab" + testTxid[2:], Vout: 3}},
		{name: "missing vout", in: testTxid, wantErr: true},
		{name: "short txid", in: "abcd:0", wantErr: true},
		{name: "not hex", in: "not_a_txid:0", wantErr: true},
		{name: "non hex 64", in: strings.Repeat("z", 64) + ":0", wantErr: true},
		{name: "vout overflow", in: testTxid + ":4294967296", wantErr: true},
		{name: "negative vout", in: testTxid + ":-1", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutpoint(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrBadOutpoint), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Txid+":"+strings.SplitN(tt.in, ":", 2)[1], got.String())
		})
	}
}

func TestContentHashLayout(t *testing.T) {
	m := ProofMetadata{
		MentorID:  "mentorA",
		MenteeID:  "menteeB",
		RequestID: "req1",
		Rating:    5,
		Comment:   "great session",
		Timestamp: 0x0102030405060708,
	}
	var buf []byte
	buf = append(buf, "mentorA:menteeB:req1:"...)
	buf = append(buf, 5, ':')
	buf = append(buf, "great session:"...)
	buf = append(buf, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01)
	want := sha256.Sum256(buf)

	assert.Equal(t, Hash32(want), m.ContentHash())

	m2 := m
	m2.Comment = "great session!"
	assert.NotEqual(t, m.ContentHash(), m2.ContentHash())
}

func TestContractIDDeterministic(t *testing.T) {
	m := ProofMetadata{MentorID: "m", MenteeID: "e", RequestID: "r", Rating: 3, Timestamp: 42}
	ch := m.ContentHash()
	pub := "02" + strings.Repeat("11", 32)

	id1 := ContractID(ch, SchemaID, pub, 42)
	id2 := ContractID(ch, SchemaID, pub, 42)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)

	assert.NotEqual(t, id1, ContractID(ch, SchemaID, pub, 43))
	assert.NotEqual(t, id1, ContractID(ch, "other-schema", pub, 42))
	assert.NotEqual(t, id1, ContractID(ch, SchemaID, "03"+strings.Repeat("11", 32), 42))
}

func TestSealCommitment(t *testing.T) {
	s := Seal{Txid: testTxid, Vout: 7}
	s.Blinding[0] = 0xaa

	txid, _ := hex.DecodeString(testTxid)
	buf := append([]byte{}, txid...)
	buf = append(buf, 7, 0, 0, 0)
	buf = append(buf, s.Blinding[:]...)
	assert.Equal(t, Hash32(sha256.Sum256(buf)), s.Commitment())

	other := s
	other.Blinding[0] = 0xab
	assert.NotEqual(t, s.Commitment(), other.Commitment())
}

func TestTransitionCommitmentAndTransferID(t *testing.T) {
	from := Seal{Txid: testTxid, Vout: 0}
	to := Seal{Txid: testTxid, Vout: 1}
	c1 := TransitionCommitment(from, to, "abc")
	c2 := TransitionCommitment(to, from, "abc")
	assert.NotEqual(t, c1, c2, "order of seals is committed")
	assert.NotEqual(t, c1, TransitionCommitment(from, to, "abd"))

	id := TransferID(c1)
	assert.True(t, strings.HasPrefix(id, "transfer_"))
	assert.Len(t, id, len("transfer_")+32)
}

func TestNewSealRandomBlinding(t *testing.T) {
	op := Outpoint{Txid: testTxid, Vout: 2}
	a, err := NewSeal(op)
	require.NoError(t, err)
	b, err := NewSeal(op)
	require.NoError(t, err)
	assert.Equal(t, op, a.Outpoint())
	assert.NotEqual(t, a.Blinding, b.Blinding)
}

func TestStoredContractJSON(t *testing.T) {
	seal := &Seal{Txid: testTxid, Vout: 1}
	seal.Blinding[31] = 9
	c := &StoredContract{
		ContractID:  "id",
		Metadata:    ProofMetadata{MentorID: "m", Rating: 4},
		Genesis:     GenesisOp{ContractID: "id", Schema: SchemaID, Seal: seal},
		CurrentSeal: seal,
	}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"blinding":"`+strings.Repeat("00", 31)+`09"`)

	var back StoredContract
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *seal, *back.CurrentSeal)

	var h Hash32
	assert.Error(t, h.UnmarshalText([]byte("zz")))
}

func TestCloneIsDeep(t *testing.T) {
	c := &StoredContract{
		CurrentSeal: &Seal{Txid: testTxid},
		Transitions: []StateTransition{{Sig: "a"}},
	}
	cp := c.Clone()
	cp.CurrentSeal.Vout = 9
	cp.Transitions[0].Sig = "b"
	assert.Equal(t, uint32(0), c.CurrentSeal.Vout)
	assert.Equal(t, "a", c.Transitions[0].Sig)
}

func TestSpentSeal(t *testing.T) {
	op := Outpoint{Txid: testTxid, Vout: 0}
	c := &StoredContract{Transitions: []StateTransition{{FromSeal: Seal{Txid: testTxid, Vout: 0}}}}
	assert.True(t, c.SpentSeal(op))
	assert.False(t, c.SpentSeal(Outpoint{Txid: testTxid, Vout: 1}))
}
