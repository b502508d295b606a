package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Feustey/rgbproof/config"
	"github.com/Feustey/rgbproof/engine"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{config.EnvDataDir, config.EnvNetwork, config.EnvIssuerKey,
		config.EnvEsploraURL, config.EnvDebugLevel} {
		t.Setenv(k, "")
	}
}

func ctl(t *testing.T, dir string, args ...string) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"-datadir", dir, "-envfile", "", "-debuglevel", "off"}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.Bytes(), err
}

func TestCtlRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, err := ctl(t, dir, "create", "-mentor", "mentorA", "-mentee", "menteeB",
		"-request", "req1", "-rating", "5", "-comment", "great session")
	require.NoError(t, err)
	var created struct {
		ContractID string `json:"contract_id"`
		Signature  string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(out, &created))
	assert.Len(t, created.ContractID, 64)
	assert.Len(t, created.Signature, 128)

	out, err = ctl(t, dir, "verify", created.ContractID, created.Signature)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"valid": true`)

	out, err = ctl(t, dir, "verify", created.ContractID, strings.Repeat("00", 64))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"valid": false`)

	from := strings.Repeat("a", 64) + ":0"
	to := strings.Repeat("b", 64) + ":1"
	_, err = ctl(t, dir, "transfer", "-amount", "7", created.ContractID, from, to)
	require.NoError(t, err)

	out, err = ctl(t, dir, "history", created.ContractID)
	require.NoError(t, err)
	var hist []engine.TransferRecord
	require.NoError(t, json.Unmarshal(out, &hist))
	require.Len(t, hist, 2)
	assert.Equal(t, "issuer", hist[0].From)
	assert.Equal(t, to, hist[1].To)

	out, err = ctl(t, dir, "details", created.ContractID)
	require.NoError(t, err)
	var d engine.ProofDetails
	require.NoError(t, json.Unmarshal(out, &d))
	assert.Equal(t, uint8(5), d.Rating)
	assert.Equal(t, to, d.CurrentSeal)

	out, err = ctl(t, dir, "list", "-mentor", "mentorA")
	require.NoError(t, err)
	var list []engine.ProofDetails
	require.NoError(t, json.Unmarshal(out, &list))
	assert.Len(t, list, 1)

	_, err = ctl(t, dir, "validate", created.ContractID)
	assert.NoError(t, err)
	_, err = ctl(t, dir, "verify-all")
	assert.NoError(t, err)

	out, err = ctl(t, dir, "onchain", strings.Repeat("c", 64))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"exists": true`)

	out, err = ctl(t, dir, "health")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"contract_count": 1`)
}

func TestCtlErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := ctl(t, dir)
	assert.True(t, errors.Is(err, errUsage))

	_, err = ctl(t, dir, "frobnicate")
	assert.True(t, errors.Is(err, errUsage))

	_, err = ctl(t, dir, "verify", "only-one")
	assert.True(t, errors.Is(err, errUsage))

	_, err = ctl(t, dir, "create", "-mentor", "m", "-mentee", "e", "-request", "r", "-rating", "6")
	assert.ErrorIs(t, err, engine.ErrContractCreation)

	_, err = ctl(t, dir, "details", "missing")
	assert.ErrorIs(t, err, engine.ErrStorage)

	_, err = ctl(t, dir, "-network", "moonnet", "health")
	assert.Error(t, err)
}
