package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() DeploymentConfig {
	return DeploymentConfig{
		UnitID:       108,
		Hostname:     "media",
		DiskGB:       8,
		MemoryMB:     2048,
		Cores:        2,
		Network:      NetworkDHCP,
		Bridge:       "vmbr0",
		RootPassword: "secret",
	}
}

func TestValidateNetworkInvariants(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.Address = "192.168.1.50/24"
	assert.Error(t, cfg.Validate(), "dhcp mode must reject a static address")

	cfg = validConfig()
	cfg.Network = NetworkStatic
	assert.Error(t, cfg.Validate(), "static mode requires address and gateway")

	cfg.Address = "192.168.1.50/24"
	cfg.Gateway = "192.168.1.1"
	assert.NoError(t, cfg.Validate())

	cfg.Network = "bridged"
	assert.Error(t, cfg.Validate(), "unknown network mode must be rejected")
}

func TestValidateRejectsNonPositiveSizes(t *testing.T) {
	for _, mutate := range []func(*DeploymentConfig){
		func(c *DeploymentConfig) { c.UnitID = 0 },
		func(c *DeploymentConfig) { c.DiskGB = -1 },
		func(c *DeploymentConfig) { c.MemoryMB = 0 },
		func(c *DeploymentConfig) { c.Cores = 0 },
		func(c *DeploymentConfig) { c.Hostname = "" },
		func(c *DeploymentConfig) { c.RootPassword = "" },
	} {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestCollectAcceptsDefaultsOnBlankAnswers(t *testing.T) {
	// One blank line per prompt; dhcp mode skips address and gateway.
	in := strings.NewReader(strings.Repeat("\n", 10))
	c := NewCollector(in, &bytes.Buffer{})

	cfg, err := c.Collect(validConfig())
	require.NoError(t, err)
	assert.Equal(t, 108, cfg.UnitID)
	assert.Equal(t, "media", cfg.Hostname)
	assert.Equal(t, NetworkDHCP, cfg.Network)
	assert.Empty(t, cfg.Gateway)
}

func TestCollectSolicitsStaticFieldsOnlyInStaticMode(t *testing.T) {
	answers := []string{
		"",                 // unit id
		"",                 // hostname
		"",                 // storage
		"",                 // disk
		"",                 // memory
		"",                 // cores
		"static",           // network mode
		"",                 // bridge
		"25",               // vlan
		"192.168.1.50/24",  // address
		"192.168.1.1",      // gateway
		"",                 // password
	}
	c := NewCollector(strings.NewReader(strings.Join(answers, "\n")+"\n"), &bytes.Buffer{})

	cfg, err := c.Collect(validConfig())
	require.NoError(t, err)
	assert.Equal(t, NetworkStatic, cfg.Network)
	assert.Equal(t, "192.168.1.50/24", cfg.Address)
	assert.Equal(t, "192.168.1.1", cfg.Gateway)
	assert.Equal(t, "25", cfg.VLANTag)
}

func TestCollectCancelsOnQOrEOF(t *testing.T) {
	c := NewCollector(strings.NewReader("q\n"), &bytes.Buffer{})
	_, err := c.Collect(validConfig())
	assert.ErrorIs(t, err, ErrCanceled)

	c = NewCollector(strings.NewReader(""), &bytes.Buffer{})
	_, err = c.Collect(validConfig())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestCollectNeverEchoesCredentialDefault(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader(strings.Repeat("\n", 10))
	c := NewCollector(in, &out)

	cfg, err := c.Collect(validConfig())
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.RootPassword, "blank answer keeps the supplied credential")
	assert.NotContains(t, out.String(), "secret", "prompts must not echo the credential default")
	assert.Contains(t, out.String(), "Root password [*****]")
}

func TestConfirmRequiresExplicitYes(t *testing.T) {
	cfg := validConfig()

	var out bytes.Buffer
	c := NewCollector(strings.NewReader("yes\n"), &out)
	require.NoError(t, c.Confirm(&cfg))
	assert.NotContains(t, out.String(), "secret", "summary must never include the credential")

	c = NewCollector(strings.NewReader("\n"), &bytes.Buffer{})
	assert.ErrorIs(t, c.Confirm(&cfg), ErrCanceled, "blank answer must not confirm")

	c = NewCollector(strings.NewReader("no\n"), &bytes.Buffer{})
	assert.ErrorIs(t, c.Confirm(&cfg), ErrCanceled)
}
