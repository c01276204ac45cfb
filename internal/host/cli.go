package host

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const storageRegistryPath = "/etc/pve/storage.cfg"

// runner executes a host command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// CLI drives the virtualization host through its management commands
// (pct, pveam and the storage registry file).
type CLI struct {
	run runner
}

// NewCLI creates a host client backed by the local management CLI.
func NewCLI() *CLI {
	return &CLI{run: execRunner}
}

// Verify checks that the host management tools exist before anything
// side-effecting runs.
func (c *CLI) Verify() error {
	for _, tool := range []string{"pct", "pveam", "pvesh"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("required host tool '%s' not found: %w", tool, err)
		}
	}
	return nil
}

func (c *CLI) NextFreeID(ctx context.Context) (int, error) {
	out, err := c.run(ctx, "pvesh", "get", "/cluster/nextid")
	if err != nil {
		return 0, fmt.Errorf("could not query next free unit id: %w", err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected next-id output %q: %w", strings.TrimSpace(out), err)
	}
	return id, nil
}

func (c *CLI) StorageRegistry(ctx context.Context) (string, error) {
	data, err := os.ReadFile(storageRegistryPath)
	if err != nil {
		return "", fmt.Errorf("could not read storage registry: %w", err)
	}
	return string(data), nil
}

func (c *CLI) RefreshTemplates(ctx context.Context) error {
	_, err := c.run(ctx, "pveam", "update")
	return err
}

func (c *CLI) ListTemplates(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "pveam", "available", "--section", "system")
	if err != nil {
		return nil, fmt.Errorf("could not list available templates: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		names = append(names, fields[len(fields)-1])
	}
	return names, nil
}

func (c *CLI) TemplateExists(ctx context.Context, storage, name string) (bool, error) {
	out, err := c.run(ctx, "pveam", "list", storage)
	if err != nil {
		return false, fmt.Errorf("could not list templates on storage '%s': %w", storage, err)
	}
	volume := templateVolume(storage, name)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == volume {
			return true, nil
		}
	}
	return false, nil
}

func (c *CLI) DownloadTemplate(ctx context.Context, storage, name string) error {
	if _, err := c.run(ctx, "pveam", "download", storage, name); err != nil {
		return fmt.Errorf("could not download template '%s' to storage '%s': %w", name, storage, err)
	}
	return nil
}

func (c *CLI) CreateUnit(ctx context.Context, req CreateRequest) error {
	args := []string{
		"create", strconv.Itoa(req.UnitID), templateVolume(req.Storage, req.Template),
		"--hostname", req.Hostname,
		"--password", req.RootPassword,
		"--storage", req.Storage,
		"--rootfs", fmt.Sprintf("%s:%d", req.Storage, req.DiskGB),
		"--memory", strconv.Itoa(req.MemoryMB),
		"--cores", strconv.Itoa(req.Cores),
		"--net0", req.Net,
		"--ostype", req.OSType,
	}
	if req.Nesting {
		args = append(args, "--features", "nesting=1")
	}
	if req.Unprivileged {
		args = append(args, "--unprivileged", "1")
	}
	if _, err := c.run(ctx, "pct", args...); err != nil {
		return fmt.Errorf("could not create unit %d: %w", req.UnitID, err)
	}
	return nil
}

func (c *CLI) StartUnit(ctx context.Context, id int) error {
	if _, err := c.run(ctx, "pct", "start", strconv.Itoa(id)); err != nil {
		return fmt.Errorf("could not start unit %d: %w", id, err)
	}
	return nil
}

func (c *CLI) Exec(ctx context.Context, id int, command ...string) error {
	args := append([]string{"exec", strconv.Itoa(id), "--"}, command...)
	_, err := c.run(ctx, "pct", args...)
	return err
}

func (c *CLI) PushFile(ctx context.Context, id int, dest string, content []byte, perms string) error {
	tmp, err := os.CreateTemp("", "hatch-push-*")
	if err != nil {
		return fmt.Errorf("could not stage file for push: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("could not stage file for push: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not stage file for push: %w", err)
	}
	if _, err := c.run(ctx, "pct", "push", strconv.Itoa(id), tmp.Name(), dest, "--perms", perms); err != nil {
		return fmt.Errorf("could not push file to unit %d:%s: %w", id, dest, err)
	}
	return nil
}

func (c *CLI) UnitAddress(ctx context.Context, id int) (string, error) {
	out, err := c.run(ctx, "pct", "exec", strconv.Itoa(id), "--", "hostname", "-I")
	if err != nil {
		return "", fmt.Errorf("unit %d has not reported an address: %w", id, err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("unit %d has not reported an address", id)
	}
	return fields[0], nil
}

func templateVolume(storage, name string) string {
	return storage + ":vztmpl/" + name
}
