package tokenregistry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicateToken = errors.New("duplicate token")
	ErrUnknownToken   = errors.New("unknown token")
)

// Registry provides indexed access to token metadata. It is immutable once built.
type Registry struct {
	byAddress map[common.Address]Token
	bySymbol  map[string]Token
	all       []Token
}

// New indexes tokens by address and by case-insensitive symbol. Both must be unique.
func New(tokens []Token) (*Registry, error) {
	r := &Registry{
		byAddress: make(map[common.Address]Token, len(tokens)),
		bySymbol:  make(map[string]Token, len(tokens)),
		all:       make([]Token, 0, len(tokens)),
	}
	for _, t := range tokens {
		if t.Address == (common.Address{}) {
			return nil, fmt.Errorf("token %q has no address", t.Symbol)
		}
		symbol := strings.ToUpper(t.Symbol)
		if _, ok := r.byAddress[t.Address]; ok {
			return nil, fmt.Errorf("%w: address %s", ErrDuplicateToken, t.Address)
		}
		if _, ok := r.bySymbol[symbol]; ok && symbol != "" {
			return nil, fmt.Errorf("%w: symbol %s", ErrDuplicateToken, t.Symbol)
		}
		r.byAddress[t.Address] = t
		if symbol != "" {
			r.bySymbol[symbol] = t
		}
		r.all = append(r.all, t)
	}
	return r, nil
}

// GetByAddress retrieves a token by its contract address.
func (r *Registry) GetByAddress(address common.Address) (Token, bool) {
	t, ok := r.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves a token by symbol, ignoring case.
func (r *Registry) GetBySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Lookup accepts either a hex address or a symbol.
func (r *Registry) Lookup(ref string) (Token, error) {
	if common.IsHexAddress(ref) {
		if t, ok := r.GetByAddress(common.HexToAddress(ref)); ok {
			return t, nil
		}
	} else if t, ok := r.GetBySymbol(ref); ok {
		return t, nil
	}
	return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, ref)
}

// All returns a copy of every token in registration order.
func (r *Registry) All() []Token {
	allCopy := make([]Token, len(r.all))
	copy(allCopy, r.all)
	return allCopy
}
