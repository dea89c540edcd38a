package asset

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/holiman/uint256"

	"github.com/dauTT/astroport-dca/internal/errs"
)

// maxBits bounds every amount to the Uint128 range used on chain.
const maxBits = 128

// Amount is a non-negative fixed-precision integer. All arithmetic is
// checked; there is no wraparound.
type Amount struct {
	v uint256.Int
}

func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

func ZeroAmount() Amount {
	return Amount{}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", errs.ErrInvalidInput)
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q: %v", errs.ErrInvalidInput, trimmed, err)
	}
	if v.BitLen() > maxBits {
		return Amount{}, fmt.Errorf("%w: amount %q", errs.ErrOverflow, trimmed)
	}
	return Amount{v: *v}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Lt(b Amount) bool { return a.Cmp(b) < 0 }

func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow || out.v.BitLen() > maxBits {
		return Amount{}, fmt.Errorf("%w: %s + %s", errs.ErrOverflow, a, b)
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s", errs.ErrUnderflow, a, b)
	}
	return out, nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow || out.v.BitLen() > maxBits {
		return Amount{}, fmt.Errorf("%w: %s * %s", errs.ErrOverflow, a, b)
	}
	return out, nil
}

// Uint64 truncates amounts that do not fit; callers use it for metrics only.
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	var s string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
	} else {
		s = string(raw)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
