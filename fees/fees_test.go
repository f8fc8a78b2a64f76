package fees

import (
	"math/big"
	"testing"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	partner         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	systemReceiver  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	partnerReceiver = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

func validConfig() Config {
	return Config{
		Partner:             partner,
		PartnerFeeNumerator: 50,
		SystemFeeNumerator:  DefaultSystemFeeNumerator,
		SystemFeeReceiver:   systemReceiver,
		PartnerFeeReceiver:  partnerReceiver,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"full take", func(c *Config) { c.SystemFeeNumerator, c.PartnerFeeNumerator = 4000, 6000 }, false},
		{"over 100%", func(c *Config) { c.SystemFeeNumerator, c.PartnerFeeNumerator = 4001, 6000 }, true},
		{"numerators overflow uint16 sum", func(c *Config) { c.SystemFeeNumerator, c.PartnerFeeNumerator = 65535, 65535 }, true},
		{"zero partner", func(c *Config) { c.Partner = common.Address{} }, true},
		{"zero system receiver", func(c *Config) { c.SystemFeeReceiver = common.Address{} }, true},
		{"zero partner receiver", func(c *Config) { c.PartnerFeeReceiver = common.Address{} }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, engine.ErrInvalidFeeConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name                          string
		system, partner               uint16
		gross                         string
		wantSystem, wantPartner, want string
	}{
		{"one ether", 50, 50, "1000000000000000000", "5000000000000000", "5000000000000000", "990000000000000000"},
		{"truncates each term", 50, 30, "199", "0", "0", "199"},
		{"truncates toward zero", 33, 17, "10001", "33", "17", "9951"},
		{"no fees", 0, 0, "12345", "0", "0", "12345"},
		{"everything", 2500, 7500, "1000", "250", "750", "0"},
		{"zero", 50, 50, "0", "0", "0", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.SystemFeeNumerator, cfg.PartnerFeeNumerator = tc.system, tc.partner
			gross, _ := new(big.Int).SetString(tc.gross, 10)

			sys, par, net := cfg.Split(gross)
			assert.Equal(t, tc.wantSystem, sys.String())
			assert.Equal(t, tc.wantPartner, par.String())
			assert.Equal(t, tc.want, net.String())
			assert.Equal(t, tc.gross, gross.String(), "input must not be modified")
		})
	}

	sys, par, net := validConfig().Split(nil)
	assert.Zero(t, sys.Sign()+par.Sign()+net.Sign())
}

func TestSplitConservesAmount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		system := rapid.Uint16Range(0, engine.BasisPointDenominator).Draw(t, "system")
		partner := rapid.Uint16Range(0, engine.BasisPointDenominator-system).Draw(t, "partner")
		gross := new(big.Int).SetUint64(rapid.Uint64().Draw(t, "gross"))
		gross.Lsh(gross, uint(rapid.IntRange(0, 128).Draw(t, "shift")))

		cfg := validConfig()
		cfg.SystemFeeNumerator, cfg.PartnerFeeNumerator = system, partner
		sys, par, net := cfg.Split(gross)

		if net.Sign() < 0 {
			t.Fatalf("negative net %s", net)
		}
		sum := new(big.Int).Add(sys, par)
		sum.Add(sum, net)
		if sum.Cmp(gross) != 0 {
			t.Fatalf("%s + %s + %s != %s", sys, par, net, gross)
		}
	})
}

func TestSplitter(t *testing.T) {
	_, err := NewSplitter(Config{})
	require.ErrorIs(t, err, engine.ErrInvalidFeeConfig)

	s, err := NewSplitter(validConfig())
	require.NoError(t, err)

	require.NoError(t, s.SetPartnerFeeNumerator(100))
	sys, par, net := s.Split(big.NewInt(10000))
	assert.Equal(t, "50", sys.String())
	assert.Equal(t, "100", par.String())
	assert.Equal(t, "9850", net.String())

	err = s.SetPartnerFeeNumerator(9951)
	assert.ErrorIs(t, err, engine.ErrInvalidFeeConfig)
	assert.Equal(t, uint16(100), s.Config().PartnerFeeNumerator, "rejected updates leave the schedule unchanged")

	newReceiver := common.HexToAddress("0x00000000000000000000000000000000000000b3")
	require.NoError(t, s.SetReceivers(partner, systemReceiver, newReceiver))
	assert.Equal(t, newReceiver, s.Config().PartnerFeeReceiver)
	assert.Equal(t, DefaultSystemFeeNumerator, s.Config().SystemFeeNumerator)

	assert.ErrorIs(t, s.SetReceivers(partner, common.Address{}, newReceiver), engine.ErrInvalidFeeConfig)
	assert.Equal(t, systemReceiver, s.Config().SystemFeeReceiver)
}
