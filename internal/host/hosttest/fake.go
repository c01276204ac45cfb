// Package hosttest provides a scripted in-memory Host for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/hatch/internal/host"
)

// Fake implements host.Host against in-memory state. Zero value is
// usable; populate the fields a test cares about.
type Fake struct {
	NextID    int
	Registry  string
	Templates []string

	RefreshErr error
	CreateErr  error
	StartErr   error

	// Present maps "storage/template" to presence on that storage.
	Present map[string]bool

	// ExecErrs returns an error for the nth Exec call (indexed from
	// zero) when the entry is non-nil; missing entries succeed.
	ExecErrs map[int]error

	// Files holds content pushed into the unit, keyed by destination.
	Files map[string][]byte

	// ExistingPaths is consulted by "test -f" probes.
	ExistingPaths map[string]bool

	Address string

	Created   []host.CreateRequest
	Started   []int
	Downloads []string
	Execs     [][]string
	execCount int
}

func (f *Fake) NextFreeID(ctx context.Context) (int, error) {
	if f.NextID == 0 {
		return 100, nil
	}
	return f.NextID, nil
}

func (f *Fake) StorageRegistry(ctx context.Context) (string, error) {
	return f.Registry, nil
}

func (f *Fake) RefreshTemplates(ctx context.Context) error {
	return f.RefreshErr
}

func (f *Fake) ListTemplates(ctx context.Context) ([]string, error) {
	return f.Templates, nil
}

func (f *Fake) TemplateExists(ctx context.Context, storage, name string) (bool, error) {
	return f.Present[storage+"/"+name], nil
}

func (f *Fake) DownloadTemplate(ctx context.Context, storage, name string) error {
	f.Downloads = append(f.Downloads, storage+"/"+name)
	if f.Present == nil {
		f.Present = map[string]bool{}
	}
	f.Present[storage+"/"+name] = true
	return nil
}

func (f *Fake) CreateUnit(ctx context.Context, req host.CreateRequest) error {
	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.Created = append(f.Created, req)
	return nil
}

func (f *Fake) StartUnit(ctx context.Context, id int) error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.Started = append(f.Started, id)
	return nil
}

func (f *Fake) Exec(ctx context.Context, id int, command ...string) error {
	f.Execs = append(f.Execs, command)
	n := f.execCount
	f.execCount++
	if err := f.ExecErrs[n]; err != nil {
		return err
	}
	if len(command) == 3 && command[0] == "test" && command[1] == "-f" {
		if !f.ExistingPaths[command[2]] {
			return errors.New("exit status 1")
		}
	}
	return nil
}

func (f *Fake) PushFile(ctx context.Context, id int, dest string, content []byte, perms string) error {
	if f.Files == nil {
		f.Files = map[string][]byte{}
	}
	f.Files[dest] = content
	return nil
}

func (f *Fake) UnitAddress(ctx context.Context, id int) (string, error) {
	if f.Address == "" {
		return "", fmt.Errorf("unit %d has not reported an address", id)
	}
	return f.Address, nil
}
