// Package bootstrap runs the sanitized installer inside a unit and
// registers the installed application as a supervised service.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/template"

	"github.com/atvirokodosprendimai/hatch/internal/host"
	"github.com/atvirokodosprendimai/hatch/internal/installer"
)

const scriptPath = "/tmp/hatch-bootstrap.sh"

// Service describes the supervised service registered for the
// installed application.
type Service struct {
	Name        string
	Description string
	WorkingDir  string
	ExecStart   string
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{ .Description }}
After=network.target

[Service]
WorkingDirectory={{ .WorkingDir }}
ExecStart={{ .ExecStart }}
Restart=always
User=root

[Install]
WantedBy=multi-user.target
`))

// Executor runs installers and registers services inside a unit.
type Executor struct {
	host host.Host
}

// NewExecutor creates an executor backed by the given host.
func NewExecutor(h host.Host) *Executor {
	return &Executor{host: h}
}

// Run pushes the sanitized script into the unit and executes it as
// root. A nonzero script exit is fatal to the pipeline.
func (e *Executor) Run(ctx context.Context, unitID int, art *installer.Artifact) error {
	if err := e.host.PushFile(ctx, unitID, scriptPath, art.Body, "0755"); err != nil {
		return fmt.Errorf("could not stage installer in unit %d: %w", unitID, err)
	}
	log.Printf("[INFO] Running installer in unit %d", unitID)
	if err := e.host.Exec(ctx, unitID, "bash", scriptPath); err != nil {
		return fmt.Errorf("installer failed in unit %d: %w", unitID, err)
	}
	return nil
}

// EntrypointExists probes the unit for the expected application
// entrypoint.
func (e *Executor) EntrypointExists(ctx context.Context, unitID int, path string) bool {
	return e.host.Exec(ctx, unitID, "test", "-f", path) == nil
}

// RenderUnit renders the service-unit definition for a service.
func RenderUnit(svc Service) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, svc); err != nil {
		return nil, fmt.Errorf("could not render service unit: %w", err)
	}
	return buf.Bytes(), nil
}

// Register writes the service-unit definition into the guest's
// service-management directory, then activates and starts it.
func (e *Executor) Register(ctx context.Context, unitID int, svc Service) error {
	content, err := RenderUnit(svc)
	if err != nil {
		return err
	}
	dest := "/etc/systemd/system/" + svc.Name + ".service"
	if err := e.host.PushFile(ctx, unitID, dest, content, "0644"); err != nil {
		return fmt.Errorf("could not install service unit: %w", err)
	}
	if err := e.host.Exec(ctx, unitID, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("could not reload service manager: %w", err)
	}
	if err := e.host.Exec(ctx, unitID, "systemctl", "enable", "--now", svc.Name); err != nil {
		return fmt.Errorf("could not activate service '%s': %w", svc.Name, err)
	}
	log.Printf("[INFO] Registered and started service '%s' in unit %d", svc.Name, unitID)
	return nil
}
