// Package asset models native coins and token-contract balances behind one
// Asset value type.
package asset

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dauTT/astroport-dca/internal/errs"
)

// Kind tags the two asset variants.
type Kind uint8

const (
	KindNative Kind = iota + 1
	KindToken
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native_token"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// Info identifies an asset: a native denom or a token contract address.
type Info struct {
	Kind         Kind
	Denom        string
	ContractAddr string
}

func NativeInfo(denom string) Info {
	return Info{Kind: KindNative, Denom: denom}
}

func TokenInfo(contractAddr string) Info {
	return Info{Kind: KindToken, ContractAddr: contractAddr}
}

func (i Info) IsNative() bool { return i.Kind == KindNative }

func (i Info) IsZero() bool { return i == Info{} }

// Key is the denom or contract address, unique across both variants.
func (i Info) Key() string {
	switch i.Kind {
	case KindNative:
		return i.Denom
	case KindToken:
		return i.ContractAddr
	default:
		return ""
	}
}

func (i Info) String() string { return i.Key() }

func (i Info) Validate() error {
	switch i.Kind {
	case KindNative:
		if strings.TrimSpace(i.Denom) == "" {
			return fmt.Errorf("%w: native asset denom is empty", errs.ErrInvalidInput)
		}
	case KindToken:
		if strings.TrimSpace(i.ContractAddr) == "" {
			return fmt.Errorf("%w: token contract address is empty", errs.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown asset kind %d", errs.ErrInvalidInput, i.Kind)
	}
	return nil
}

type infoJSON struct {
	NativeToken *struct {
		Denom string `json:"denom"`
	} `json:"native_token,omitempty"`
	Token *struct {
		ContractAddr string `json:"contract_addr"`
	} `json:"token,omitempty"`
}

func (i Info) MarshalJSON() ([]byte, error) {
	var out infoJSON
	switch i.Kind {
	case KindNative:
		out.NativeToken = &struct {
			Denom string `json:"denom"`
		}{Denom: i.Denom}
	case KindToken:
		out.Token = &struct {
			ContractAddr string `json:"contract_addr"`
		}{ContractAddr: i.ContractAddr}
	default:
		return []byte("null"), nil
	}
	return json.Marshal(out)
}

func (i *Info) UnmarshalJSON(data []byte) error {
	var in infoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.NativeToken != nil && in.Token != nil:
		return fmt.Errorf("%w: asset info has both native_token and token", errs.ErrInvalidInput)
	case in.NativeToken != nil:
		*i = NativeInfo(in.NativeToken.Denom)
	case in.Token != nil:
		*i = TokenInfo(in.Token.ContractAddr)
	default:
		*i = Info{}
	}
	return nil
}

// Asset is an amount of one asset kind.
type Asset struct {
	Info   Info   `json:"info"`
	Amount Amount `json:"amount"`
}

func New(info Info, amount Amount) Asset {
	return Asset{Info: info, Amount: amount}
}

func Zero(info Info) Asset {
	return Asset{Info: info}
}

func (a Asset) String() string {
	return a.Amount.String() + a.Info.Key()
}

// Coin is a native denom amount attached to a call.
type Coin struct {
	Denom  string `json:"denom"`
	Amount Amount `json:"amount"`
}

func (c Coin) String() string { return c.Amount.String() + c.Denom }

type Coins []Coin

// AmountOf sums every coin of denom.
func (cs Coins) AmountOf(denom string) (Amount, error) {
	total := ZeroAmount()
	for _, c := range cs {
		if c.Denom != denom {
			continue
		}
		next, err := total.Add(c.Amount)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}

func (cs Coins) String() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// ParseCoins parses a comma separated list such as "100uluna,5ibc/27A".
func ParseCoins(s string) (Coins, error) {
	var out Coins
	for _, coin := range strings.Split(s, ",") {
		coin = strings.TrimSpace(coin)
		if coin == "" {
			continue
		}
		idx := firstNonDigit(coin)
		if idx <= 0 {
			return nil, fmt.Errorf("%w: coin %q", errs.ErrInvalidInput, coin)
		}
		amount, err := ParseAmount(coin[:idx])
		if err != nil {
			return nil, err
		}
		out = append(out, Coin{Denom: coin[idx:], Amount: amount})
	}
	return out, nil
}

func firstNonDigit(s string) int {
	for i, r := range s {
		if r < '0' || r > '9' {
			return i
		}
	}
	return -1
}

// Aggregate sums assets of the same kind, keeping first-seen order.
func Aggregate(assets ...Asset) ([]Asset, error) {
	out := make([]Asset, 0, len(assets))
	index := make(map[Info]int, len(assets))
	for _, a := range assets {
		i, ok := index[a.Info]
		if !ok {
			index[a.Info] = len(out)
			out = append(out, a)
			continue
		}
		sum, err := out[i].Amount.Add(a.Amount)
		if err != nil {
			return nil, err
		}
		out[i].Amount = sum
	}
	return out, nil
}
