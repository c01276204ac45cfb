package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/hatch/internal/config"
	"github.com/atvirokodosprendimai/hatch/internal/events"
	"github.com/atvirokodosprendimai/hatch/internal/host"
	"github.com/atvirokodosprendimai/hatch/internal/pipeline"
	"github.com/atvirokodosprendimai/hatch/internal/state"
)

func main() {
	cmd := &cli.Command{
		Name:  "hatch",
		Usage: "Provision an LXC unit and bootstrap a supervised application inside it.",
		Commands: []*cli.Command{
			{
				Name:  "deploy",
				Usage: "Run the guided provisioning-and-bootstrap pipeline",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "unit-id", Value: 0, Usage: "Unit identifier (0 = next free id from the host)"},
					&cli.StringFlag{Name: "hostname", Value: "hatch-app", Usage: "Guest hostname"},
					&cli.StringFlag{Name: "storage", Value: "", Usage: "Storage pool (empty = first rootdir-capable pool)"},
					&cli.IntFlag{Name: "disk", Value: 8, Usage: "Root disk size in GB"},
					&cli.IntFlag{Name: "memory", Value: 2048, Usage: "Memory in MB"},
					&cli.IntFlag{Name: "cores", Value: 2, Usage: "CPU core count"},
					&cli.StringFlag{Name: "network", Value: "dhcp", Usage: "Network mode: dhcp or static"},
					&cli.StringFlag{Name: "bridge", Value: "vmbr0", Usage: "Bridge to attach the unit to"},
					&cli.StringFlag{Name: "vlan", Value: "", Usage: "Optional VLAN tag"},
					&cli.StringFlag{Name: "address", Value: "", Usage: "IP/CIDR (static mode only)"},
					&cli.StringFlag{Name: "gateway", Value: "", Usage: "Gateway address (static mode only)"},
					&cli.StringFlag{Name: "password", Value: "", Usage: "Root credential for the unit"},
					&cli.StringFlag{Name: "installer-url", Usage: "HTTPS URL of the application installer script", Required: true},
					&cli.StringFlag{Name: "legacy-path", Value: "/root/app", Usage: "Hardcoded install path the installer assumes"},
					&cli.StringFlag{Name: "app-dir", Value: "/opt/hatch/app", Usage: "Application directory inside the unit"},
					&cli.StringFlag{Name: "entrypoint", Value: "/opt/hatch/app/start.sh", Usage: "Expected application entrypoint after install"},
					&cli.StringFlag{Name: "service-name", Value: "hatch-app", Usage: "Name of the registered service"},
					&cli.StringFlag{Name: "state-db", Value: "hatch.db", Usage: "Path to the checkpoint SQLite database"},
					&cli.StringFlag{Name: "events-url", Value: "", Usage: "Optional NATS URL for status events"},
					&cli.StringFlag{Name: "resume", Value: "", Usage: "Resume the run with this identifier from its last checkpoint"},
					&cli.DurationFlag{Name: "fetch-timeout", Value: 30 * time.Second, Usage: "Per-request installer fetch timeout"},
					&cli.IntFlag{Name: "fetch-attempts", Value: 3, Usage: "Installer fetch attempt budget"},
					&cli.DurationFlag{Name: "ready-deadline", Value: 90 * time.Second, Usage: "How long to wait for the unit to accept commands"},
					&cli.BoolFlag{Name: "yes", Usage: "Skip prompts and confirmation; use flags as-is"},
				},
				Action: runDeploy,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runDeploy(ctx context.Context, cmd *cli.Command) error {
	h := host.NewCLI()
	if err := h.Verify(); err != nil {
		return err
	}

	store, err := state.NewStore(cmd.String("state-db"))
	if err != nil {
		return err
	}

	var pub *events.Publisher
	if url := cmd.String("events-url"); url != "" {
		pub, err = events.Connect(url)
		if err != nil {
			log.Printf("[WARN] Status events disabled: %v", err)
		} else {
			defer pub.Close()
		}
	}

	cfg, err := collectConfig(ctx, cmd, h)
	if err != nil {
		if errors.Is(err, config.ErrCanceled) {
			log.Println("[INFO] Deployment canceled; no changes were made.")
		}
		return err
	}

	p := pipeline.New(h, store, pub, pipeline.Options{
		InstallerURL:  cmd.String("installer-url"),
		LegacyPath:    cmd.String("legacy-path"),
		AppDir:        cmd.String("app-dir"),
		Entrypoint:    cmd.String("entrypoint"),
		ServiceName:   cmd.String("service-name"),
		ServiceDesc:   fmt.Sprintf("%s (managed by hatch)", cmd.String("service-name")),
		FetchTimeout:  cmd.Duration("fetch-timeout"),
		FetchAttempts: int(cmd.Int("fetch-attempts")),
		ReadyDeadline: cmd.Duration("ready-deadline"),
	})

	res, err := p.Run(ctx, cfg, cmd.String("resume"))
	if err != nil {
		return err
	}

	addr := res.Address
	if addr == "" {
		addr = "unknown"
	}
	fmt.Printf("\nDeployment complete.\n")
	fmt.Printf("  Unit ID:  %d\n", res.UnitID)
	fmt.Printf("  Hostname: %s\n", res.Hostname)
	fmt.Printf("  Address:  %s\n", addr)
	if res.Registered {
		fmt.Printf("  Service:  %s (Restart=always)\n", cmd.String("service-name"))
	} else {
		fmt.Printf("  Service:  registration skipped (no entrypoint found)\n")
	}
	return nil
}

// collectConfig seeds defaults from flags (asking the host for the
// next free unit id when none was given) and, unless --yes was
// passed, walks the operator through every field before asking for
// final confirmation.
func collectConfig(ctx context.Context, cmd *cli.Command, h host.Host) (*config.DeploymentConfig, error) {
	defaults := config.DeploymentConfig{
		UnitID:       int(cmd.Int("unit-id")),
		Hostname:     cmd.String("hostname"),
		Storage:      cmd.String("storage"),
		DiskGB:       int(cmd.Int("disk")),
		MemoryMB:     int(cmd.Int("memory")),
		Cores:        int(cmd.Int("cores")),
		Network:      config.NetworkMode(cmd.String("network")),
		Bridge:       cmd.String("bridge"),
		VLANTag:      cmd.String("vlan"),
		Address:      cmd.String("address"),
		Gateway:      cmd.String("gateway"),
		RootPassword: cmd.String("password"),
	}
	if defaults.UnitID == 0 {
		id, err := h.NextFreeID(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not determine next free unit id: %w", err)
		}
		defaults.UnitID = id
	}

	if cmd.Bool("yes") {
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
		return &defaults, nil
	}

	collector := config.NewCollector(os.Stdin, os.Stdout)
	cfg, err := collector.Collect(defaults)
	if err != nil {
		return nil, err
	}
	if err := collector.Confirm(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
