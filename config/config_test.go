package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresCredentials(t *testing.T) {
	t.Setenv("DERIBIT_API_KEY", "")
	t.Setenv("DERIBIT_API_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DERIBIT_API_KEY", "key")
	t.Setenv("DERIBIT_API_SECRET", "secret")
	t.Setenv("DERIBIT_TESTNET", "")
	t.Setenv("INSTRUMENT", "")
	t.Setenv("METRICS_ADDR", "")

	conf, err := Load()
	require.NoError(t, err)

	assert.True(t, conf.Testnet)
	assert.Equal(t, "BTC-PERPETUAL", conf.Instrument)
	assert.Equal(t, ":8080", conf.MetricsAddr)
}

func TestEndpoints(t *testing.T) {
	testnet := &Config{Testnet: true}
	assert.Equal(t, "https://test.deribit.com/api/v2", testnet.RestURL())
	assert.Equal(t, "wss://test.deribit.com/ws/api/v2", testnet.WsURL())

	prod := &Config{Testnet: false}
	assert.Equal(t, "https://www.deribit.com/api/v2", prod.RestURL())
	assert.Equal(t, "wss://www.deribit.com/ws/api/v2", prod.WsURL())
}
