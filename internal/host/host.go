package host

import "context"

// CreateRequest carries everything the host needs to create a new unit.
type CreateRequest struct {
	UnitID       int
	Hostname     string
	RootPassword string
	Storage      string
	Template     string // template volume name on Storage
	DiskGB       int
	MemoryMB     int
	Cores        int
	Net          string // net0 attachment descriptor
	OSType       string
	Nesting      bool
	Unprivileged bool
}

// Host is the management interface of the virtualization host. The
// production implementation shells out to the host CLI; tests use a
// scripted fake.
type Host interface {
	// NextFreeID returns the host's next unused unit identifier.
	NextFreeID(ctx context.Context) (int, error)

	// StorageRegistry returns the raw storage registry text, organized
	// as named sections with per-section capability lines.
	StorageRegistry(ctx context.Context) (string, error)

	// RefreshTemplates updates the host's available-template index.
	RefreshTemplates(ctx context.Context) error

	// ListTemplates returns the names of all templates in the index.
	ListTemplates(ctx context.Context) ([]string, error)

	// TemplateExists reports whether a template is already present on
	// the given storage pool.
	TemplateExists(ctx context.Context, storage, name string) (bool, error)

	// DownloadTemplate fetches a template onto the given storage pool.
	DownloadTemplate(ctx context.Context, storage, name string) error

	// CreateUnit issues a single creation request for a new unit.
	CreateUnit(ctx context.Context, req CreateRequest) error

	// StartUnit starts a created unit.
	StartUnit(ctx context.Context, id int) error

	// Exec runs a command inside a running unit as root. A nonzero
	// exit status is returned as an error.
	Exec(ctx context.Context, id int, command ...string) error

	// PushFile writes content to a path inside a running unit.
	PushFile(ctx context.Context, id int, dest string, content []byte, perms string) error

	// UnitAddress returns the unit's reported network address, or an
	// error if the guest has not reported one yet.
	UnitAddress(ctx context.Context, id int) (string, error)
}
