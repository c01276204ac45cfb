// Package pipeline sequences the provisioning-and-bootstrap stages
// and owns the run's state machine.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/hatch/internal/bootstrap"
	"github.com/atvirokodosprendimai/hatch/internal/config"
	"github.com/atvirokodosprendimai/hatch/internal/events"
	"github.com/atvirokodosprendimai/hatch/internal/host"
	"github.com/atvirokodosprendimai/hatch/internal/installer"
	"github.com/atvirokodosprendimai/hatch/internal/provision"
	"github.com/atvirokodosprendimai/hatch/internal/resolve"
	"github.com/atvirokodosprendimai/hatch/internal/state"
)

// Stage names the pipeline's states. Aborted and Done are terminal.
type Stage string

const (
	StageCollecting    Stage = "collecting"
	StageResolving     Stage = "resolving"
	StageProvisioning  Stage = "provisioning"
	StageFetching      Stage = "fetching"
	StagePatching      Stage = "patching"
	StageBootstrapping Stage = "bootstrapping"
	StageRegistering   Stage = "registering"
	StageSkipped       Stage = "skipped"
	StageDone          Stage = "done"
	StageAborted       Stage = "aborted"
)

// Options are the run-wide settings outside the deployment
// configuration itself.
type Options struct {
	InstallerURL    string
	LegacyPath      string
	AppDir          string
	Entrypoint      string
	ServiceName     string
	ServiceDesc     string
	FetchTimeout    time.Duration
	FetchAttempts   int
	ReadyDeadline   time.Duration
	TemplatePattern *regexp.Regexp
}

// Result is what a successful run reports back to the operator.
type Result struct {
	RunID      string
	UnitID     int
	Hostname   string
	Address    string // empty means unknown
	Registered bool
}

// Pipeline wires the stages together. The deployment configuration
// is threaded through explicitly and never mutated.
type Pipeline struct {
	host   host.Host
	store  *state.Store
	events *events.Publisher
	opts   Options
}

// New assembles a pipeline.
func New(h host.Host, store *state.Store, pub *events.Publisher, opts Options) *Pipeline {
	if opts.TemplatePattern == nil {
		opts.TemplatePattern = resolve.DefaultTemplatePattern
	}
	return &Pipeline{host: h, store: store, events: pub, opts: opts}
}

// Run executes the whole pipeline for a confirmed configuration.
// When resumeID is set, checkpoints recorded by the named earlier run
// are honored and already-completed provisioning steps are skipped.
// Any failure aborts; nothing is rolled back.
func (p *Pipeline) Run(ctx context.Context, cfg *config.DeploymentConfig, resumeID string) (*Result, error) {
	var run *state.Run
	var err error
	if resumeID != "" {
		run, err = p.store.Load(resumeID)
		if err != nil {
			return nil, fmt.Errorf("could not resume run '%s': %w", resumeID, err)
		}
		log.Printf("[INFO] Resuming run %s at unit %d (last stage: %s)", run.RunID, run.UnitID, run.Stage)
	} else {
		run, err = p.store.Begin(uuid.NewString(), cfg.UnitID, cfg.Hostname)
		if err != nil {
			return nil, err
		}
	}
	unitID := run.UnitID

	// Collecting: the interactive part happened upstream; the stage
	// verifies the collected configuration is internally consistent.
	p.enter(run, StageCollecting)
	if err := cfg.Validate(); err != nil {
		return nil, p.abort(run, err)
	}

	p.enter(run, StageResolving)
	resolver := resolve.NewResolver(p.host)
	pools, err := resolver.Storage(ctx)
	if err != nil {
		return nil, p.abort(run, err)
	}
	storage := cfg.Storage
	if storage == "" {
		storage = pools[0].Name
		log.Printf("[INFO] No storage requested, using '%s'", storage)
	} else if !poolExists(pools, storage) {
		return nil, p.abort(run, fmt.Errorf("storage '%s' does not advertise rootdir content", storage))
	}
	tmpl, err := resolver.LatestTemplate(ctx, p.opts.TemplatePattern)
	if err != nil {
		return nil, p.abort(run, err)
	}
	log.Printf("[INFO] Resolved storage '%s' and template '%s'", storage, tmpl.Name)

	p.enter(run, StageProvisioning)
	prov := provision.NewProvisioner(p.host)
	if err := prov.EnsureTemplate(ctx, storage, tmpl); err != nil {
		return nil, p.abort(run, err)
	}
	if run.UnitCreated {
		log.Printf("[INFO] Unit %d already created, skipping creation", unitID)
	} else {
		if err := prov.Create(ctx, cfg, unitID, storage, tmpl); err != nil {
			return nil, p.abort(run, err)
		}
		run.UnitCreated = true
		p.checkpoint(run)
	}
	if run.UnitStarted {
		log.Printf("[INFO] Unit %d already started, skipping start", unitID)
	} else {
		if err := prov.Start(ctx, unitID); err != nil {
			return nil, p.abort(run, err)
		}
		run.UnitStarted = true
		p.checkpoint(run)
	}
	if err := prov.WaitReady(ctx, unitID, p.opts.ReadyDeadline); err != nil {
		return nil, p.abort(run, err)
	}

	p.enter(run, StageFetching)
	fetcher := installer.NewFetcher(p.opts.FetchTimeout, p.opts.FetchAttempts)
	art, err := fetcher.Fetch(ctx, p.opts.InstallerURL)
	if err != nil {
		return nil, p.abort(run, err)
	}

	p.enter(run, StagePatching)
	art.Apply(installer.DefaultRules(p.opts.LegacyPath, p.opts.AppDir))
	log.Printf("[INFO] Patched installer: %d lines altered or removed", len(art.Audit))

	exec := bootstrap.NewExecutor(p.host)
	p.enter(run, StageBootstrapping)
	if run.BootstrapRun {
		log.Printf("[INFO] Bootstrap already ran in unit %d, skipping", unitID)
	} else {
		if err := exec.Run(ctx, unitID, art); err != nil {
			return nil, p.abort(run, err)
		}
		run.BootstrapRun = true
		p.checkpoint(run)
	}

	registered := false
	if exec.EntrypointExists(ctx, unitID, p.opts.Entrypoint) {
		p.enter(run, StageRegistering)
		if run.ServiceRegistered {
			log.Printf("[INFO] Service already registered in unit %d, skipping", unitID)
		} else {
			svc := bootstrap.Service{
				Name:        p.opts.ServiceName,
				Description: p.opts.ServiceDesc,
				WorkingDir:  p.opts.AppDir,
				ExecStart:   p.opts.Entrypoint,
			}
			if err := exec.Register(ctx, unitID, svc); err != nil {
				return nil, p.abort(run, err)
			}
			run.ServiceRegistered = true
			p.checkpoint(run)
		}
		registered = true
	} else {
		p.enter(run, StageSkipped)
		log.Printf("[INFO] Entrypoint '%s' not found in unit %d; service registration skipped", p.opts.Entrypoint, unitID)
	}

	p.enter(run, StageDone)

	return &Result{
		RunID:      run.RunID,
		UnitID:     unitID,
		Hostname:   run.Hostname,
		Address:    prov.Address(ctx, unitID),
		Registered: registered,
	}, nil
}

func (p *Pipeline) enter(run *state.Run, stage Stage) {
	run.Stage = string(stage)
	p.checkpoint(run)
	log.Printf("[INFO] Stage: %s", stage)
	p.events.Publish(events.Status{RunID: run.RunID, UnitID: run.UnitID, Stage: string(stage), Success: true})
}

func (p *Pipeline) checkpoint(run *state.Run) {
	if err := p.store.Save(run); err != nil {
		log.Printf("[WARN] Could not persist checkpoint for run %s: %v", run.RunID, err)
	}
}

func (p *Pipeline) abort(run *state.Run, err error) error {
	failed := run.Stage
	run.Stage = string(StageAborted)
	p.checkpoint(run)
	p.events.Publish(events.Status{RunID: run.RunID, UnitID: run.UnitID, Stage: failed, Success: false, Message: err.Error()})
	log.Printf("[ERROR] Aborted during %s: %v", failed, err)
	return fmt.Errorf("%s: %w", failed, err)
}

func poolExists(pools []resolve.StoragePool, name string) bool {
	for _, pool := range pools {
		if pool.Name == name {
			return true
		}
	}
	return false
}
