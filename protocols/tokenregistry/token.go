package tokenregistry

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAmount is returned when a human-readable amount cannot be represented in base units.
var ErrInvalidAmount = errors.New("invalid token amount")

// Token is the display metadata of a token.
type Token struct {
	Address  common.Address `yaml:"address" json:"address"`
	Name     string         `yaml:"name" json:"name"`
	Symbol   string         `yaml:"symbol" json:"symbol"`
	Decimals uint8          `yaml:"decimals" json:"decimals"`
}

func (t Token) unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

// FormatAmount renders a base-unit amount as a decimal string, trimming trailing zeros:
// 2959209000 of a 6-decimal token is "2959.209".
func (t Token) FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	abs := new(big.Int).Abs(amount)
	whole, frac := new(big.Int).QuoRem(abs, t.unit(), new(big.Int))

	s := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", int(t.Decimals)-len(digits)) + digits
		s += "." + strings.TrimRight(digits, "0")
	}
	if amount.Sign() < 0 {
		s = "-" + s
	}
	return s
}

// ParseAmount converts a decimal string such as "1.5" into base units. More fractional digits than
// the token has decimals is an error, as is a negative amount.
func (t Token) ParseAmount(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	r.Mul(r, new(big.Rat).SetInt(t.unit()))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, t.Decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}
