// Package config loads the aggregator binary's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/defistate/dex-aggregator-go/chains"
	"github.com/defistate/dex-aggregator-go/fees"
	"github.com/defistate/dex-aggregator-go/protocols/tokenregistry"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCallTimeout = 5 * time.Second
	DefaultFeeTier     = uniswapv3.FeeTierMedium
)

// FeeConfig is the fee section. A missing systemFeeNumerator selects fees.DefaultSystemFeeNumerator.
type FeeConfig struct {
	Partner             common.Address `yaml:"partner"`
	PartnerFeeNumerator uint16         `yaml:"partnerFeeNumerator"`
	SystemFeeNumerator  *uint16        `yaml:"systemFeeNumerator"`
	SystemFeeReceiver   common.Address `yaml:"systemFeeReceiver"`
	PartnerFeeReceiver  common.Address `yaml:"partnerFeeReceiver"`
}

// Schedule converts the section into a fee schedule.
func (f FeeConfig) Schedule() fees.Config {
	system := fees.DefaultSystemFeeNumerator
	if f.SystemFeeNumerator != nil {
		system = *f.SystemFeeNumerator
	}
	return fees.Config{
		Partner:             f.Partner,
		PartnerFeeNumerator: f.PartnerFeeNumerator,
		SystemFeeNumerator:  system,
		SystemFeeReceiver:   f.SystemFeeReceiver,
		PartnerFeeReceiver:  f.PartnerFeeReceiver,
	}
}

type Config struct {
	ChainID        uint64                `yaml:"chainId"`
	RPCURL         string                `yaml:"rpcUrl"`
	WrappedNative  common.Address        `yaml:"wrappedNative"`
	Owner          common.Address        `yaml:"owner"`
	Fees           FeeConfig             `yaml:"fees"`
	V2Routers      []common.Address      `yaml:"v2Routers"`
	V3Routers      []common.Address      `yaml:"v3Routers"`
	SupportedPools []common.Address      `yaml:"supportedPools"`
	DefaultFeeTier uint32                `yaml:"defaultFeeTier"`
	Tokens         []tokenregistry.Token `yaml:"tokens"`
	MetricsAddr    string                `yaml:"metricsAddr"`
	CallTimeout    time.Duration         `yaml:"callTimeout"`
}

// LoadConfig reads, defaults and validates the file at path. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields, taking the wrapped native token and routers from the chain's
// canonical deployment when the chain is known.
func (c *Config) applyDefaults() {
	if d, ok := chains.Lookup(c.ChainID); ok {
		if c.WrappedNative == (common.Address{}) {
			c.WrappedNative = d.WrappedNative
		}
		if len(c.V2Routers) == 0 {
			c.V2Routers = d.V2Routers
		}
		if len(c.V3Routers) == 0 {
			c.V3Routers = d.V3Routers
		}
	}
	if c.DefaultFeeTier == 0 {
		c.DefaultFeeTier = DefaultFeeTier
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpcUrl is required")
	}
	if c.WrappedNative == (common.Address{}) {
		return fmt.Errorf("config: wrappedNative is required for chain %d", c.ChainID)
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: owner is required")
	}
	if uniswapv3.TickSpacingForFee(c.DefaultFeeTier) == 0 {
		return fmt.Errorf("config: unknown defaultFeeTier %d", c.DefaultFeeTier)
	}
	if c.CallTimeout < 0 {
		return errors.New("config: callTimeout cannot be negative")
	}
	if err := c.Fees.Schedule().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := tokenregistry.New(c.Tokens); err != nil {
		return fmt.Errorf("config: tokens: %w", err)
	}
	return nil
}
