package chain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/errs"
)

func TestSignAndVerify(t *testing.T) {
	s, err := SignerFromHex("terra", strings.Repeat("11", 32))
	require.NoError(t, err)
	_, err = NormalizeAddress("terra", s.Address())
	require.NoError(t, err)

	tx, err := s.Sign(BroadcastRequest{Sender: "someone-else", Msg: map[string]any{"x": 1}, Sequence: 4})
	require.NoError(t, err)

	var body BroadcastRequest
	require.NoError(t, json.Unmarshal(tx.Body, &body))
	assert.Equal(t, s.Address(), body.Sender)
	assert.Equal(t, uint64(4), body.Sequence)

	signer, err := tx.Verify("terra")
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer)

	// The envelope survives the wire byte for byte.
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	var decoded SignedTx
	require.NoError(t, json.Unmarshal(raw, &decoded))
	signer, err = decoded.Verify("terra")
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer)

	tampered := *tx
	tampered.Body = bytes.Replace(tx.Body, []byte(`"sequence":4`), []byte(`"sequence":5`), 1)
	require.NotEqual(t, string(tx.Body), string(tampered.Body))
	_, err = tampered.Verify("terra")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	other, err := SignerFromHex("terra", strings.Repeat("22", 32))
	require.NoError(t, err)
	swapped := *tx
	swapped.PubKey = other.SignBody(tx.Body).PubKey
	_, err = swapped.Verify("terra")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = SignedTx{Body: tx.Body, PubKey: []byte{1, 2}, Signature: tx.Signature}.Verify("terra")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = SignedTx{}.Verify("terra")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSignerFromHexRejectsBadKeys(t *testing.T) {
	_, err := SignerFromHex("terra", "zz")
	require.Error(t, err)
	_, err = SignerFromHex("terra", "abcd")
	require.ErrorContains(t, err, "32")
}

func TestSignerFromExtendedKeyMatchesDeriver(t *testing.T) {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{7}, 32), &chaincfg.MainNetParams)
	require.NoError(t, err)

	s, err := SignerFromExtendedKey("terra", master.String(), 2)
	require.NoError(t, err)

	xpub, err := master.Neuter()
	require.NoError(t, err)
	addr, err := AddressDeriver{XPub: xpub.String(), Prefix: "terra"}.Derive(2)
	require.NoError(t, err)
	assert.Equal(t, addr, s.Address())

	_, err = SignerFromExtendedKey("terra", xpub.String(), 2)
	require.ErrorContains(t, err, "not private")
}
