package config

import (
	"errors"
	"fmt"
)

// NetworkMode selects how the unit's interface acquires its address.
type NetworkMode string

const (
	NetworkDHCP   NetworkMode = "dhcp"
	NetworkStatic NetworkMode = "static"
)

// DeploymentConfig is the full set of parameters for one deployment.
// It is built once per run and never mutated afterward.
type DeploymentConfig struct {
	UnitID       int
	Hostname     string
	Storage      string // empty means first rootdir-capable pool
	DiskGB       int
	MemoryMB     int
	Cores        int
	Network      NetworkMode
	Bridge       string
	VLANTag      string
	Address      string // IP/CIDR, static mode only
	Gateway      string // static mode only
	RootPassword string `json:"-"` // never logged
}

// ErrCanceled is returned when the operator cancels a prompt or
// declines the final confirmation. Nothing has been changed when it
// is returned.
var ErrCanceled = errors.New("deployment canceled by operator")

// Validate checks internal consistency of a collected configuration.
func (c *DeploymentConfig) Validate() error {
	if c.UnitID <= 0 {
		return fmt.Errorf("unit id must be a positive integer, got %d", c.UnitID)
	}
	if c.Hostname == "" {
		return errors.New("hostname must not be empty")
	}
	if c.DiskGB <= 0 {
		return fmt.Errorf("disk size must be a positive number of GB, got %d", c.DiskGB)
	}
	if c.MemoryMB <= 0 {
		return fmt.Errorf("memory must be a positive number of MB, got %d", c.MemoryMB)
	}
	if c.Cores <= 0 {
		return fmt.Errorf("core count must be positive, got %d", c.Cores)
	}
	if c.Bridge == "" {
		return errors.New("bridge must not be empty")
	}
	switch c.Network {
	case NetworkDHCP:
		if c.Address != "" || c.Gateway != "" {
			return errors.New("dhcp mode must not carry a static address or gateway")
		}
	case NetworkStatic:
		if c.Address == "" || c.Gateway == "" {
			return errors.New("static mode requires both an IP/CIDR and a gateway")
		}
	default:
		return fmt.Errorf("network mode must be 'dhcp' or 'static', got '%s'", c.Network)
	}
	if c.RootPassword == "" {
		return errors.New("root credential must not be empty")
	}
	return nil
}
