// Package fees splits a gross input amount into the system fee, the partner fee and the net
// amount that is actually swapped.
package fees

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultSystemFeeNumerator is 0.5%, in basis points.
const DefaultSystemFeeNumerator uint16 = 50

var denominator = big.NewInt(engine.BasisPointDenominator)

// Config is a fee schedule. Numerators are in basis points.
type Config struct {
	Partner             common.Address `json:"partner"`
	PartnerFeeNumerator uint16         `json:"partnerFeeNumerator"`
	SystemFeeNumerator  uint16         `json:"systemFeeNumerator"`
	SystemFeeReceiver   common.Address `json:"systemFeeReceiver"`
	PartnerFeeReceiver  common.Address `json:"partnerFeeReceiver"`
}

// Validate checks that every address is set and that the total take does not exceed 100%.
func (c Config) Validate() error {
	if c.Partner == (common.Address{}) || c.SystemFeeReceiver == (common.Address{}) || c.PartnerFeeReceiver == (common.Address{}) {
		return fmt.Errorf("%w: fee addresses must be non-zero", engine.ErrInvalidFeeConfig)
	}
	if uint32(c.SystemFeeNumerator)+uint32(c.PartnerFeeNumerator) > engine.BasisPointDenominator {
		return fmt.Errorf("%w: system %d + partner %d bps exceeds %d", engine.ErrInvalidFeeConfig,
			c.SystemFeeNumerator, c.PartnerFeeNumerator, engine.BasisPointDenominator)
	}
	return nil
}

// Split returns the fee terms of gross, each truncated toward zero, and what remains:
//
//	systemFee + partnerFee + net == gross
func (c Config) Split(gross *big.Int) (systemFee, partnerFee, net *big.Int) {
	if gross == nil {
		return new(big.Int), new(big.Int), new(big.Int)
	}
	systemFee = portion(gross, c.SystemFeeNumerator)
	partnerFee = portion(gross, c.PartnerFeeNumerator)
	net = new(big.Int).Sub(gross, systemFee)
	net.Sub(net, partnerFee)
	return systemFee, partnerFee, net
}

func portion(amount *big.Int, bps uint16) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return p.Quo(p, denominator)
}

// Splitter holds the live fee schedule. The system fee numerator is fixed at construction;
// everything else may be replaced, always as a whole and always validated.
type Splitter struct {
	mu      sync.Mutex
	current atomic.Pointer[Config]
}

func NewSplitter(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Splitter{}
	s.current.Store(&cfg)
	return s, nil
}

// Config returns a copy of the current schedule.
func (s *Splitter) Config() Config {
	return *s.current.Load()
}

// Split applies the current schedule to gross.
func (s *Splitter) Split(gross *big.Int) (systemFee, partnerFee, net *big.Int) {
	return s.current.Load().Split(gross)
}

// SetPartnerFeeNumerator changes the partner's cut.
func (s *Splitter) SetPartnerFeeNumerator(numerator uint16) error {
	return s.update(func(c *Config) { c.PartnerFeeNumerator = numerator })
}

// SetReceivers replaces the partner and both fee receivers.
func (s *Splitter) SetReceivers(partner, systemFeeReceiver, partnerFeeReceiver common.Address) error {
	return s.update(func(c *Config) {
		c.Partner = partner
		c.SystemFeeReceiver = systemFeeReceiver
		c.PartnerFeeReceiver = partnerFeeReceiver
	})
}

func (s *Splitter) update(fn func(c *Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.current.Store(&next)
	return nil
}
