package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Collector solicits deployment parameters one field at a time, each
// with a pre-filled default. An empty answer accepts the default;
// "q" or end of input cancels the whole run.
type Collector struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewCollector reads answers from r and writes prompts to w.
func NewCollector(r io.Reader, w io.Writer) *Collector {
	return &Collector{in: bufio.NewScanner(r), out: w}
}

// Collect walks the operator through every field, starting from the
// given defaults, and returns a validated configuration. No
// side-effecting action may be taken by the caller until Confirm has
// also been answered affirmatively.
func (c *Collector) Collect(defaults DeploymentConfig) (*DeploymentConfig, error) {
	cfg := defaults

	var err error
	if cfg.UnitID, err = c.promptInt("Unit ID", cfg.UnitID); err != nil {
		return nil, err
	}
	if cfg.Hostname, err = c.promptString("Hostname", cfg.Hostname); err != nil {
		return nil, err
	}
	if cfg.Storage, err = c.promptString("Storage pool (empty = auto)", cfg.Storage); err != nil {
		return nil, err
	}
	if cfg.DiskGB, err = c.promptInt("Disk size (GB)", cfg.DiskGB); err != nil {
		return nil, err
	}
	if cfg.MemoryMB, err = c.promptInt("Memory (MB)", cfg.MemoryMB); err != nil {
		return nil, err
	}
	if cfg.Cores, err = c.promptInt("CPU cores", cfg.Cores); err != nil {
		return nil, err
	}
	mode, err := c.promptString("Network mode (dhcp/static)", string(cfg.Network))
	if err != nil {
		return nil, err
	}
	cfg.Network = NetworkMode(strings.ToLower(mode))
	if cfg.Bridge, err = c.promptString("Bridge", cfg.Bridge); err != nil {
		return nil, err
	}
	if cfg.VLANTag, err = c.promptString("VLAN tag (empty = none)", cfg.VLANTag); err != nil {
		return nil, err
	}
	if cfg.Network == NetworkStatic {
		if cfg.Address, err = c.promptString("IP address (CIDR)", cfg.Address); err != nil {
			return nil, err
		}
		if cfg.Gateway, err = c.promptString("Gateway", cfg.Gateway); err != nil {
			return nil, err
		}
	} else {
		cfg.Address = ""
		cfg.Gateway = ""
	}
	if cfg.RootPassword, err = c.promptSecret("Root password", cfg.RootPassword); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Confirm prints a summary of the collected configuration and asks
// for explicit affirmative confirmation. Anything but yes cancels.
func (c *Collector) Confirm(cfg *DeploymentConfig) error {
	fmt.Fprintf(c.out, "\nDeployment summary:\n")
	fmt.Fprintf(c.out, "  Unit ID:  %d\n", cfg.UnitID)
	fmt.Fprintf(c.out, "  Hostname: %s\n", cfg.Hostname)
	storage := cfg.Storage
	if storage == "" {
		storage = "(auto)"
	}
	fmt.Fprintf(c.out, "  Storage:  %s\n", storage)
	fmt.Fprintf(c.out, "  Disk:     %d GB, Memory: %d MB, Cores: %d\n", cfg.DiskGB, cfg.MemoryMB, cfg.Cores)
	if cfg.Network == NetworkStatic {
		fmt.Fprintf(c.out, "  Network:  static %s via %s on %s\n", cfg.Address, cfg.Gateway, cfg.Bridge)
	} else {
		fmt.Fprintf(c.out, "  Network:  dhcp on %s\n", cfg.Bridge)
	}
	if cfg.VLANTag != "" {
		fmt.Fprintf(c.out, "  VLAN:     %s\n", cfg.VLANTag)
	}

	answer, err := c.promptString("Proceed with deployment? (y/N)", "n")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return nil
	}
	return ErrCanceled
}

func (c *Collector) promptString(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	if !c.in.Scan() {
		return "", ErrCanceled
	}
	answer := strings.TrimSpace(c.in.Text())
	if answer == "q" {
		return "", ErrCanceled
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// promptSecret behaves like promptString but never echoes the
// pre-filled default back to the terminal.
func (c *Collector) promptSecret(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [*****]: ", label)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	if !c.in.Scan() {
		return "", ErrCanceled
	}
	answer := strings.TrimSpace(c.in.Text())
	if answer == "q" {
		return "", ErrCanceled
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (c *Collector) promptInt(label string, def int) (int, error) {
	for {
		answer, err := c.promptString(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintf(c.out, "Please enter a whole number.\n")
			continue
		}
		return n, nil
	}
}
