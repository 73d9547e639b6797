// config_test.go tests config files
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileToTest is a relative path to the sample configuration file shipped with the service.
var fileToTest = "../../cmd/chainquery/conf.json"

func writeConf(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

// TestConfig extracts config from the sample file and checks values loaded
func TestConfig(t *testing.T) {
	conf, err := ExtractConfiguration(fileToTest)
	require.NoError(t, err)

	assert.Equal(t, "1337", conf.Port)
	require.Len(t, conf.Platforms, 1)
	assert.Equal(t, "tezos", conf.Platforms[0].Name)
	require.Len(t, conf.Platforms[0].Networks, 1)
	assert.Equal(t, "tezos", conf.Platforms[0].Networks[0].Schema)
	assert.Equal(t, 15*time.Minute, conf.Cache.TTL)
	assert.Nil(t, conf.MaxRetry())

	pol := conf.Metadata.Values("tezos", "mainnet", "accounts", "balance", conf.Cache.MaxResults)
	assert.False(t, pol.Cached)
	assert.Equal(t, 6, conf.Metadata.Attribute("tezos", "mainnet", "accounts", "balance").Scale)
}

func TestYAMLAndEnvOverrides(t *testing.T) {
	path := writeConf(t, "conf.yaml", `
port: "8080"
platforms:
  - name: tezos
    networks:
      - name: mainnet
        schema: tezos
startup:
  deadline: 30s
cache:
  ttl: 1m
metadata:
  tezos:
    displayName: Tezos
    networks:
      mainnet:
        entities:
          Blocks:
            attributes:
              kind:
                cache:
                  maxResults: 5
                  minMatchLength: 2
`)

	t.Setenv("CQ_PORT", "9090")
	t.Setenv("CQ_CACHE_HIGHCARDINALITYLIMIT", "25")
	t.Setenv("CQ_STARTUP_MAXRETRY", "3")
	t.Setenv("CQ_SECURITY_APIKEYS", "k1,k2")

	conf, err := ExtractConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", conf.Port)
	assert.Equal(t, 25, conf.Cache.HighCardinalityLimit)
	assert.Equal(t, time.Minute, conf.Cache.TTL)
	assert.Equal(t, 30*time.Second, conf.Startup.Deadline)
	require.NotNil(t, conf.MaxRetry())
	assert.Equal(t, 3, *conf.MaxRetry())
	assert.Equal(t, []string{"k1", "k2"}, conf.Security.APIKeys)
	assert.Equal(t, "Tezos", conf.Metadata.Platform("tezos").DisplayName)

	// keys are matched case-insensitively
	pol := conf.Metadata.Values("tezos", "mainnet", "Blocks", "kind", conf.Cache.MaxResults)
	assert.True(t, pol.Cached)
	assert.Equal(t, 5, pol.MaxResults)
	assert.Equal(t, 2, pol.MinMatchLength)

	pol = conf.Metadata.Values("tezos", "mainnet", "blocks", "hash", conf.Cache.MaxResults)
	assert.Equal(t, ValuesPolicy{Cached: true, MaxResults: 50}, pol)
}

func TestPlatformsFromEnv(t *testing.T) {
	t.Setenv("CQ_PLATFORMS", `[{"name":"tezos","networks":[{"name":"ghostnet","schema":"ghost"}]}]`)

	conf, err := ExtractConfiguration("")
	require.NoError(t, err)
	require.Len(t, conf.Platforms, 1)
	assert.Equal(t, "ghost", conf.Platforms[0].Networks[0].Schema)

	t.Setenv("CQ_PLATFORMS", `[{"name":`)

	_, err = ExtractConfiguration("")
	assert.Error(t, err)
}

func TestFailFastForcesZeroRetries(t *testing.T) {
	conf := ServiceConfig{Startup: StartupConfig{FailFast: true}}
	require.NotNil(t, conf.MaxRetry())
	assert.Equal(t, 0, *conf.MaxRetry())
}

func TestValidate(t *testing.T) {
	valid := func() ServiceConfig {
		return ServiceConfig{
			Port:      "1337",
			DB:        DBConfig{Type: Postgres},
			Platforms: []PlatformConfig{{Name: "tezos", Networks: []NetworkConfig{{Name: "mainnet", Schema: "tezos"}}}},
			Startup:   StartupConfig{Deadline: time.Minute},
			Cache:     CacheConfig{HighCardinalityLimit: 100, MaxResults: 50},
			Query:     QueryConfig{DefaultLimit: 10, MaxLimit: 100},
			Pools:     PoolsConfig{MaxConnections: 10, IOWorkers: 2},
		}
	}

	three := 3

	cases := []struct {
		name   string
		mutate func(*ServiceConfig)
		err    error
	}{
		{"valid", func(*ServiceConfig) {}, nil},
		{"no platforms", func(c *ServiceConfig) { c.Platforms = nil }, ErrNoPlatforms},
		{"no listener", func(c *ServiceConfig) { c.Port = "" }, ErrNoListener},
		{"partial tls", func(c *ServiceConfig) { c.SSLPort = "443" }, ErrTLS},
		{"full tls", func(c *ServiceConfig) { c.SSLPort, c.SSLCert, c.SSLKey = "443", "c.pem", "k.pem" }, nil},
		{"failfast with retries", func(c *ServiceConfig) { c.Startup.FailFast, c.Startup.MaxRetry = true, &three }, ErrFailFast},
	}

	for _, c := range cases {
		conf := valid()
		c.mutate(&conf)

		err := conf.Validate()
		if c.err == nil {
			assert.NoError(t, err, c.name)
		} else {
			assert.ErrorIs(t, err, c.err, c.name)
		}
	}

	invalid := []func(*ServiceConfig){
		func(c *ServiceConfig) { c.Platforms[0].Networks[0].Schema = "" },
		func(c *ServiceConfig) { c.Platforms = append(c.Platforms, c.Platforms[0]) },
		func(c *ServiceConfig) { c.Startup.Deadline = 0 },
		func(c *ServiceConfig) { c.Cache.MaxResults = 0 },
		func(c *ServiceConfig) { c.Query.MaxLimit = 1 },
		func(c *ServiceConfig) { c.Pools.IOWorkers = 0 },
		func(c *ServiceConfig) { c.DB.Type = "oracle" },
		func(c *ServiceConfig) { c.Security.KeySource.Type = MongoDB },
		func(c *ServiceConfig) { c.Security.KeySource.Type = Postgres },
		func(c *ServiceConfig) { c.Broker.Type = "kafka" },
		func(c *ServiceConfig) {
			c.Metadata = Overrides{"tezos": {Networks: map[string]NetworkOverride{"mainnet": {Entities: map[string]EntityOverride{
				"accounts": {Attributes: map[string]AttributeOverride{"balance": {Scale: -1}}}}}}}}
		},
	}

	for i, mutate := range invalid {
		conf := valid()
		mutate(&conf)
		assert.Error(t, conf.Validate(), "invalid case %d", i)
	}
}
