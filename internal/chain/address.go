package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160"

	"github.com/dauTT/astroport-dca/internal/errs"
)

// AddressFromBytes bech32-encodes raw address bytes under prefix.
func AddressFromBytes(prefix string, b []byte) (string, error) {
	if prefix == "" {
		return "", errors.New("bech32 prefix is not configured")
	}
	converted, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, converted)
}

// ModuleAddress derives a deterministic account address from a name, the way
// module accounts get theirs.
func ModuleAddress(prefix, name string) (string, error) {
	sum := sha256.Sum256([]byte(name))
	return AddressFromBytes(prefix, sum[:20])
}

func MustModuleAddress(prefix, name string) string {
	addr, err := ModuleAddress(prefix, name)
	if err != nil {
		panic(err)
	}
	return addr
}

// NormalizeAddress lower-cases addr and checks that it is valid bech32 with
// the expected prefix. An empty prefix accepts any.
func NormalizeAddress(prefix, addr string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(addr))
	hrp, data, err := bech32.Decode(lower)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", errs.ErrInvalidAddress, addr, err)
	}
	if prefix != "" && hrp != prefix {
		return "", fmt.Errorf("%w: %q has prefix %q, want %q", errs.ErrInvalidAddress, addr, hrp, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", errs.ErrInvalidAddress, addr, err)
	}
	if len(raw) != 20 && len(raw) != 32 {
		return "", fmt.Errorf("%w: %q decodes to %d bytes", errs.ErrInvalidAddress, addr, len(raw))
	}
	return lower, nil
}

// IsAddress reports whether s is a bech32 account or contract address.
func IsAddress(s string) bool {
	_, err := NormalizeAddress("", s)
	return err == nil
}

// ResolveAddress accepts either a bech32 address or a module name, which is
// turned into that module's address. Config files use names for the
// accounts a local node owns.
func ResolveAddress(prefix, s string) (string, error) {
	if IsAddress(s) {
		return NormalizeAddress(prefix, s)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: empty address", errs.ErrInvalidAddress)
	}
	return ModuleAddress(prefix, s)
}

// AddressDeriver derives child account addresses from an xpub at
// m/44'/118'/0'/0.
type AddressDeriver struct {
	XPub   string
	Prefix string
}

func (d AddressDeriver) Derive(index uint32) (string, error) {
	if d.XPub == "" {
		return "", errors.New("xpub is not configured")
	}

	key, err := hdkeychain.NewKeyFromString(d.XPub)
	if err != nil {
		return "", fmt.Errorf("parse xpub: %w", err)
	}
	child, err := key.Derive(index)
	if err != nil {
		return "", fmt.Errorf("derive child %d: %w", index, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}

	return PubKeyAddress(d.Prefix, pubKey.SerializeCompressed())
}

// PubKeyAddress is the account address of a compressed secp256k1 public key:
// ripemd160(sha256(pubkey)).
func PubKeyAddress(prefix string, compressed []byte) (string, error) {
	hash := sha256.Sum256(compressed)
	rip := ripemd160.New()
	_, _ = rip.Write(hash[:])
	return AddressFromBytes(prefix, rip.Sum(nil))
}
