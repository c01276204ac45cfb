package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/hatch/internal/config"
	"github.com/atvirokodosprendimai/hatch/internal/host/hosttest"
	"github.com/atvirokodosprendimai/hatch/internal/resolve"
)

func dhcpConfig() *config.DeploymentConfig {
	return &config.DeploymentConfig{
		UnitID:       108,
		Hostname:     "media",
		DiskGB:       8,
		MemoryMB:     2048,
		Cores:        2,
		Network:      config.NetworkDHCP,
		Bridge:       "vmbr0",
		RootPassword: "secret",
	}
}

func TestBuildNetSpecDHCP(t *testing.T) {
	spec := BuildNetSpec(dhcpConfig())
	assert.Equal(t, "name=eth0,bridge=vmbr0,ip=dhcp", spec)
	assert.NotContains(t, spec, "gw=")
}

func TestBuildNetSpecStatic(t *testing.T) {
	cfg := dhcpConfig()
	cfg.Network = config.NetworkStatic
	cfg.Address = "192.168.1.50/24"
	cfg.Gateway = "192.168.1.1"

	spec := BuildNetSpec(cfg)
	assert.Contains(t, spec, "ip=192.168.1.50/24")
	assert.Contains(t, spec, "gw=192.168.1.1")
	assert.NotContains(t, spec, "ip=dhcp")
}

func TestBuildNetSpecVLANOnlyWhenSet(t *testing.T) {
	cfg := dhcpConfig()
	assert.NotContains(t, BuildNetSpec(cfg), "tag=")

	cfg.VLANTag = "25"
	assert.Equal(t, "name=eth0,bridge=vmbr0,tag=25,ip=dhcp", BuildNetSpec(cfg))
}

func TestEnsureTemplateIsIdempotent(t *testing.T) {
	tmpl := resolve.Template{Name: "debian-12-standard_12.7-1_amd64.tar.zst", Version: "12"}
	f := &hosttest.Fake{}
	p := NewProvisioner(f)

	require.NoError(t, p.EnsureTemplate(context.Background(), "local", tmpl))
	require.Len(t, f.Downloads, 1, "absent template must be downloaded once")

	require.NoError(t, p.EnsureTemplate(context.Background(), "local", tmpl))
	assert.Len(t, f.Downloads, 1, "present template must not be re-downloaded")
}

func TestCreatePassesResolvedParameters(t *testing.T) {
	f := &hosttest.Fake{}
	p := NewProvisioner(f)
	tmpl := resolve.Template{Name: "debian-12-standard_12.7-1_amd64.tar.zst", Version: "12"}

	require.NoError(t, p.Create(context.Background(), dhcpConfig(), 108, "tank", tmpl))
	require.Len(t, f.Created, 1)

	req := f.Created[0]
	assert.Equal(t, 108, req.UnitID)
	assert.Equal(t, "tank", req.Storage)
	assert.Equal(t, tmpl.Name, req.Template)
	assert.Equal(t, "name=eth0,bridge=vmbr0,ip=dhcp", req.Net)
	assert.True(t, req.Nesting)
	assert.True(t, req.Unprivileged)
	assert.Equal(t, "debian", req.OSType)
}

func TestWaitReadyRecoversAfterFailedProbes(t *testing.T) {
	f := &hosttest.Fake{ExecErrs: map[int]error{
		0: errors.New("container not running"),
		1: errors.New("container not running"),
	}}
	p := &Provisioner{host: f, baseBackoff: time.Millisecond}

	err := p.WaitReady(context.Background(), 108, time.Second)
	require.NoError(t, err)
	assert.Len(t, f.Execs, 3)
}

func TestWaitReadyTimesOutWithDistinctError(t *testing.T) {
	f := &hosttest.Fake{ExecErrs: map[int]error{}}
	for i := 0; i < 1000; i++ {
		f.ExecErrs[i] = errors.New("container not running")
	}
	p := &Provisioner{host: f, baseBackoff: time.Millisecond}

	err := p.WaitReady(context.Background(), 108, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadyTimeout)
}

func TestAddressIsBestEffort(t *testing.T) {
	p := NewProvisioner(&hosttest.Fake{})
	assert.Equal(t, "", p.Address(context.Background(), 108))

	p = NewProvisioner(&hosttest.Fake{Address: "192.168.1.57"})
	assert.Equal(t, "192.168.1.57", p.Address(context.Background(), 108))
}
