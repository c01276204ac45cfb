// Package resolve picks the storage pool and OS template a deployment
// will use, based on what the host actually advertises.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/atvirokodosprendimai/hatch/internal/host"
)

var (
	// ErrNoRootdirStorage means no storage pool on the host can hold
	// root-filesystem content. Nothing can be provisioned without one.
	ErrNoRootdirStorage = errors.New("no storage pool advertises rootdir content")

	// ErrNoTemplate means no available template matched the base-OS
	// name pattern.
	ErrNoTemplate = errors.New("no template matches the base OS pattern")
)

// DefaultTemplatePattern matches Debian system templates for amd64.
// The first capture group is the OS version used for ordering.
var DefaultTemplatePattern = regexp.MustCompile(`^debian-(\d+(?:\.\d+)*)-standard_.+_amd64\.tar\.(?:zst|gz|xz)$`)

// StoragePool is a named host storage backend able to hold rootdir
// content.
type StoragePool struct {
	Name string
}

// Template is one downloadable OS template candidate.
type Template struct {
	Name    string
	Version string
}

// Resolver answers "which storage" and "which template" against the
// host's registry and template index.
type Resolver struct {
	host host.Host
}

// NewResolver creates a resolver backed by the given host.
func NewResolver(h host.Host) *Resolver {
	return &Resolver{host: h}
}

// RootdirPools parses the sectioned storage registry and returns one
// pool per section whose content capabilities mention rootdir. The
// most recently seen section header names the candidate; a later
// capability line claims it.
func RootdirPools(registry string) []StoragePool {
	var pools []StoragePool
	current := ""
	for _, line := range strings.Split(registry, "\n") {
		if name, ok := sectionName(line); ok {
			current = name
			continue
		}
		if current != "" && strings.Contains(line, "content") && strings.Contains(line, "rootdir") {
			pools = append(pools, StoragePool{Name: current})
			current = ""
		}
	}
	return pools
}

func sectionName(line string) (string, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return "", false
	}
	kind, name, ok := strings.Cut(line, ":")
	if !ok || kind == "" {
		return "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(name) != ""
}

// Storage returns every rootdir-capable pool, failing closed when the
// candidate set is empty.
func (r *Resolver) Storage(ctx context.Context) ([]StoragePool, error) {
	registry, err := r.host.StorageRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read storage registry: %w", err)
	}
	pools := RootdirPools(registry)
	if len(pools) == 0 {
		return nil, ErrNoRootdirStorage
	}
	return pools, nil
}

// LatestTemplate refreshes the host's template index (best-effort),
// filters candidates by pattern, and returns the maximum under
// version-aware ordering of the captured version string, so that
// version "12" sorts above version "9".
func (r *Resolver) LatestTemplate(ctx context.Context, pattern *regexp.Regexp) (Template, error) {
	if err := r.host.RefreshTemplates(ctx); err != nil {
		log.Printf("[WARN] Template index refresh failed, using cached index: %v", err)
	}

	names, err := r.host.ListTemplates(ctx)
	if err != nil {
		return Template{}, fmt.Errorf("could not list templates: %w", err)
	}

	var best Template
	var bestVersion *version.Version
	for _, name := range names {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		v, err := version.NewVersion(m[1])
		if err != nil {
			log.Printf("[WARN] Skipping template '%s': unparsable version '%s'", name, m[1])
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best = Template{Name: name, Version: m[1]}
			bestVersion = v
		}
	}
	if bestVersion == nil {
		return Template{}, ErrNoTemplate
	}
	return best, nil
}
