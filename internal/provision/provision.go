// Package provision turns a confirmed deployment configuration into a
// created, started, command-ready unit.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/hatch/internal/config"
	"github.com/atvirokodosprendimai/hatch/internal/host"
	"github.com/atvirokodosprendimai/hatch/internal/resolve"
)

// ErrReadyTimeout means the unit started but never became ready to
// accept commands within the deadline.
var ErrReadyTimeout = errors.New("unit did not become ready before the deadline")

// Unit is a provisioned compute unit. Address stays empty until the
// guest reports one; callers must treat empty as unknown.
type Unit struct {
	ID      int
	Running bool
	Address string
}

// Provisioner creates and starts units on a host.
type Provisioner struct {
	host        host.Host
	baseBackoff time.Duration
}

// NewProvisioner creates a provisioner backed by the given host.
func NewProvisioner(h host.Host) *Provisioner {
	return &Provisioner{host: h, baseBackoff: time.Second}
}

// BuildNetSpec renders the network-attachment descriptor for a
// configuration. DHCP mode yields ip=dhcp and never a gateway; static
// mode yields explicit ip= and gw= entries. The VLAN tag appears only
// when set.
func BuildNetSpec(cfg *config.DeploymentConfig) string {
	parts := []string{"name=eth0", "bridge=" + cfg.Bridge}
	if cfg.VLANTag != "" {
		parts = append(parts, "tag="+cfg.VLANTag)
	}
	if cfg.Network == config.NetworkStatic {
		parts = append(parts, "ip="+cfg.Address, "gw="+cfg.Gateway)
	} else {
		parts = append(parts, "ip=dhcp")
	}
	return strings.Join(parts, ",")
}

// EnsureTemplate downloads the template onto the storage pool unless
// it is already present. Repeated runs never re-download.
func (p *Provisioner) EnsureTemplate(ctx context.Context, storage string, tmpl resolve.Template) error {
	present, err := p.host.TemplateExists(ctx, storage, tmpl.Name)
	if err != nil {
		return fmt.Errorf("could not check template presence: %w", err)
	}
	if present {
		log.Printf("[INFO] Template '%s' already present on storage '%s'", tmpl.Name, storage)
		return nil
	}
	log.Printf("[INFO] Downloading template '%s' to storage '%s'", tmpl.Name, storage)
	if err := p.host.DownloadTemplate(ctx, storage, tmpl.Name); err != nil {
		return fmt.Errorf("could not download template: %w", err)
	}
	return nil
}

// Create issues the single unit-creation request. The unit id comes
// from the run record, not the configuration, so a resumed run keeps
// the identifier it was recorded under.
func (p *Provisioner) Create(ctx context.Context, cfg *config.DeploymentConfig, unitID int, storage string, tmpl resolve.Template) error {
	req := host.CreateRequest{
		UnitID:       unitID,
		Hostname:     cfg.Hostname,
		RootPassword: cfg.RootPassword,
		Storage:      storage,
		Template:     tmpl.Name,
		DiskGB:       cfg.DiskGB,
		MemoryMB:     cfg.MemoryMB,
		Cores:        cfg.Cores,
		Net:          BuildNetSpec(cfg),
		OSType:       "debian",
		Nesting:      true,
		Unprivileged: true,
	}
	if err := p.host.CreateUnit(ctx, req); err != nil {
		return fmt.Errorf("unit creation failed: %w", err)
	}
	log.Printf("[INFO] Created unit %d (%s)", unitID, cfg.Hostname)
	return nil
}

// Start starts a created unit.
func (p *Provisioner) Start(ctx context.Context, id int) error {
	if err := p.host.StartUnit(ctx, id); err != nil {
		return fmt.Errorf("unit start failed: %w", err)
	}
	log.Printf("[INFO] Started unit %d", id)
	return nil
}

// WaitReady polls a trivial probe command inside the unit with
// increasing backoff until it succeeds or the deadline passes. This
// replaces a fixed settling sleep so bootstrap never races the
// guest's init.
func (p *Provisioner) WaitReady(ctx context.Context, id int, deadline time.Duration) error {
	dl := time.Now().Add(deadline)
	backoff := p.baseBackoff
	var lastErr error
	for {
		lastErr = p.host.Exec(ctx, id, "true")
		if lastErr == nil {
			log.Printf("[INFO] Unit %d is ready for commands", id)
			return nil
		}
		if time.Now().Add(backoff).After(dl) {
			return fmt.Errorf("%w (unit %d): %v", ErrReadyTimeout, id, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

// Address asks the guest for its reported network address. Best
// effort; an empty string means the guest has not reported one.
func (p *Provisioner) Address(ctx context.Context, id int) string {
	addr, err := p.host.UnitAddress(ctx, id)
	if err != nil {
		log.Printf("[WARN] Could not resolve address of unit %d: %v", id, err)
		return ""
	}
	return addr
}
