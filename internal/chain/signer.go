package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	json "github.com/goccy/go-json"

	"github.com/dauTT/astroport-dca/internal/errs"
)

// SignedTx carries a transaction body together with the secp256k1 key that
// signed it. The sender is derived from PubKey, never taken from the body.
// Body is the JSON encoding of a BroadcastRequest and travels base64
// encoded so the signed bytes arrive unchanged.
type SignedTx struct {
	Body      []byte `json:"body"`
	PubKey    []byte `json:"pub_key"`
	Signature []byte `json:"signature"`
}

// Verify checks the signature over sha256(Body) and returns the signer's
// address.
func (t SignedTx) Verify(prefix string) (string, error) {
	if len(t.Body) == 0 {
		return "", fmt.Errorf("%w: empty tx body", errs.ErrInvalidInput)
	}
	pub, err := btcec.ParsePubKey(t.PubKey)
	if err != nil {
		return "", fmt.Errorf("%w: public key: %v", errs.ErrUnauthorized, err)
	}
	sig, err := ecdsa.ParseDERSignature(t.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: signature: %v", errs.ErrUnauthorized, err)
	}
	digest := sha256.Sum256(t.Body)
	if !sig.Verify(digest[:], pub) {
		return "", fmt.Errorf("%w: signature does not match body", errs.ErrUnauthorized)
	}
	return PubKeyAddress(prefix, pub.SerializeCompressed())
}

// Signer holds an account key and signs broadcast requests with it.
type Signer struct {
	key     *btcec.PrivateKey
	address string
}

func NewSigner(prefix string, key *btcec.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("signing key is nil")
	}
	addr, err := PubKeyAddress(prefix, key.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, address: addr}, nil
}

// SignerFromHex loads a raw 32-byte private key.
func SignerFromHex(prefix, hexKey string) (*Signer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(raw), btcec.PrivKeyBytesLen)
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return NewSigner(prefix, key)
}

// SignerFromExtendedKey derives child index of an xprv, the private side of
// what AddressDeriver does with the matching xpub.
func SignerFromExtendedKey(prefix, xprv string, index uint32) (*Signer, error) {
	ext, err := hdkeychain.NewKeyFromString(xprv)
	if err != nil {
		return nil, fmt.Errorf("parse xprv: %w", err)
	}
	if !ext.IsPrivate() {
		return nil, errors.New("extended key is not private")
	}
	child, err := ext.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	key, err := child.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(prefix, key)
}

func (s *Signer) Address() string { return s.address }

// Sign binds req to this signer. req.Sender is overwritten with the
// signer's address.
func (s *Signer) Sign(req BroadcastRequest) (*SignedTx, error) {
	req.Sender = s.address
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return s.SignBody(body), nil
}

// SignBody signs body as is.
func (s *Signer) SignBody(body []byte) *SignedTx {
	digest := sha256.Sum256(body)
	sig := ecdsa.Sign(s.key, digest[:])
	return &SignedTx{
		Body:      body,
		PubKey:    s.key.PubKey().SerializeCompressed(),
		Signature: sig.Serialize(),
	}
}
