package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/fees"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
chainId: 8453
rpcUrl: https://mainnet.base.org
owner: "0x00000000000000000000000000000000000000aa"
fees:
  partner: "0x00000000000000000000000000000000000000a1"
  partnerFeeNumerator: 50
  systemFeeReceiver: "0x00000000000000000000000000000000000000a2"
  partnerFeeReceiver: "0x00000000000000000000000000000000000000a3"
supportedPools:
  - "0x6c561B446416E1A00E8E93E221854d6eA4171372"
tokens:
  - address: "0x4200000000000000000000000000000000000006"
    name: Wrapped Ether
    symbol: WETH
    decimals: 18
  - address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
    name: USD Coin
    symbol: USDC
    decimals: 6
`

func TestLoadConfigAppliesChainDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(8453), cfg.ChainID)
	assert.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000006"), cfg.WrappedNative)
	assert.Equal(t, []common.Address{common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")}, cfg.V2Routers)
	assert.Equal(t, []common.Address{common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")}, cfg.V3Routers)
	assert.Equal(t, []common.Address{common.HexToAddress("0x6c561B446416E1A00E8E93E221854d6eA4171372")}, cfg.SupportedPools)
	assert.Equal(t, DefaultFeeTier, cfg.DefaultFeeTier)
	assert.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, uint8(6), cfg.Tokens[1].Decimals)

	schedule := cfg.Fees.Schedule()
	assert.Equal(t, fees.DefaultSystemFeeNumerator, schedule.SystemFeeNumerator)
	assert.Equal(t, uint16(50), schedule.PartnerFeeNumerator)
}

func TestParseOverrides(t *testing.T) {
	doc := baseConfig + `
wrappedNative: "0x0000000000000000000000000000000000000eee"
v3Routers: []
defaultFeeTier: 500
callTimeout: 250ms
metricsAddr: ":9090"
`
	doc = strings.Replace(doc, "partnerFeeNumerator: 50", "partnerFeeNumerator: 50\n  systemFeeNumerator: 0", 1)

	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000eee"), cfg.WrappedNative)
	assert.Equal(t, uint32(500), cfg.DefaultFeeTier)
	assert.Equal(t, 250*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, uint16(0), cfg.Fees.Schedule().SystemFeeNumerator, "an explicit zero is kept")
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"unknown key", baseConfig + "bogus: 1\n", nil},
		{"missing rpc", strings.Replace(baseConfig, "rpcUrl: https://mainnet.base.org", "", 1), nil},
		{"unknown chain without wrapped native", strings.Replace(baseConfig, "8453", "747474", 1), nil},
		{"missing owner", strings.Replace(baseConfig, `owner: "0x00000000000000000000000000000000000000aa"`, "", 1), nil},
		{"fees above 100%", strings.Replace(baseConfig, "partnerFeeNumerator: 50", "partnerFeeNumerator: 9999", 1), engine.ErrInvalidFeeConfig},
		{"bad fee tier", baseConfig + "defaultFeeTier: 42\n", nil},
		{"bad address", strings.Replace(baseConfig, "0x00000000000000000000000000000000000000aa", "0xnothex", 1), nil},
		{"duplicate token", baseConfig + `  - address: "0x4200000000000000000000000000000000000006"
    symbol: WETH2
`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
