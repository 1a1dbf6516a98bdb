package monitor

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"showbot/internal/eventbus"
	"showbot/internal/schedule"
	logx "showbot/pkg/logx"
)

// CoordinatorConfig is the hot-reloadable part of the poll loop.
type CoordinatorConfig struct {
	Schedule     schedule.Spec
	FetchTimeout time.Duration
	Concurrency  int
}

// CycleStats is the runtime snapshot served by /status.
type CycleStats struct {
	Cycles       uint64
	LastCycle    time.Time
	LastProjects int
	LastEvents   int
	LastErrors   int
}

// Coordinator drives the perpetual poll cycle. It owns all last-known
// project state; cycles never overlap, so that state needs no lock of
// its own beyond the one serializing cycles.
type Coordinator struct {
	reg      *Registry
	fetch    Fetcher
	dispatch *Dispatcher
	log      logx.Logger
	bus      eventbus.Bus

	cfgMu sync.Mutex
	cfg   CoordinatorConfig

	cycleMu sync.Mutex
	last    map[string]ProjectSnapshot

	statsMu sync.Mutex
	stats   CycleStats
}

func NewCoordinator(cfg CoordinatorConfig, reg *Registry, fetch Fetcher, dispatch *Dispatcher, log logx.Logger, bus eventbus.Bus) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Coordinator{
		reg:      reg,
		fetch:    fetch,
		dispatch: dispatch,
		log:      log,
		bus:      bus,
		cfg:      cfg,
		last:     map[string]ProjectSnapshot{},
	}
}

func (c *Coordinator) Apply(cfg CoordinatorConfig) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
}

func (c *Coordinator) config() CoordinatorConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg
}

func (c *Coordinator) Stats() CycleStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Run loops until ctx is canceled. It is meant to run under the
// supervisor's restart policy, but also recovers each cycle itself so
// one bad cycle never stops the next tick.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		spec := c.config().Schedule
		next := spec.Next(time.Now())
		if next.IsZero() {
			// No valid cadence; nothing to drive.
			<-ctx.Done()
			return nil
		}

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return nil
		case <-t.C:
		}

		c.runCycleSafe(ctx)
	}
}

func (c *Coordinator) runCycleSafe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in poll cycle",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	c.RunCycle(ctx)
}

type cycleResult struct {
	projectID string
	snap      ProjectSnapshot
	event     *ChangeEvent
	ok        bool
}

// RunCycle executes one full pass: collect the distinct projects of all
// enabled contexts, fetch+normalize+diff each exactly once with a
// bounded parallel fan-out, dispatch, then commit snapshots.
func (c *Coordinator) RunCycle(ctx context.Context) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	cfg := c.config()
	subs := c.reg.SnapshotEnabled()
	projects := distinctProjects(subs)
	if len(projects) == 0 {
		c.noteCycle(0, 0, 0)
		return
	}

	results := make([]cycleResult, len(projects))
	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup
	for i, pid := range projects {
		i, pid := i, pid
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("panic polling project",
						logx.String("project", pid), logx.Any("panic", r))
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.pollProject(ctx, cfg, pid)
		}()
	}
	wg.Wait()

	events, errs := 0, 0
	for _, res := range results {
		if !res.ok {
			errs++
			continue
		}
		if res.event != nil {
			events++
			c.dispatch.Dispatch(ctx, res.event, subs)
			c.publishChange(res.event)
		}
		// Commit only genuinely successful fetches; an empty-but-
		// successful snapshot still overwrites state.
		c.last[res.projectID] = res.snap
	}
	c.noteCycle(len(projects), events, errs)
}

func (c *Coordinator) pollProject(ctx context.Context, cfg CoordinatorConfig, projectID string) cycleResult {
	fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	name, snap, err := Normalize(fctx, c.fetch, projectID, c.log)
	if err != nil {
		c.log.Warn("project poll failed", logx.String("project", projectID), logx.Err(err))
		return cycleResult{projectID: projectID}
	}

	prev, hasPrev := c.last[projectID]
	ev := Diff(projectID, name, prev, hasPrev, snap)
	return cycleResult{projectID: projectID, snap: snap, event: ev, ok: true}
}

// Now performs an immediate out-of-cycle fetch for one project and
// returns the formatted full listing. It never touches last-known
// state, so the scheduled diffing is unaffected.
func (c *Coordinator) Now(ctx context.Context, projectID string) (string, error) {
	if !validProjectID(projectID) {
		return "", ErrInvalidProjectID
	}
	cfg := c.config()
	fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	name, snap, err := Normalize(fctx, c.fetch, projectID, c.log)
	if err != nil {
		return "", err
	}
	ev := &ChangeEvent{ProjectID: projectID, ProjectName: name, Kind: KindBaseline}
	for _, e := range snap {
		ev.Changes = append(ev.Changes, Change{Label: e.Label, New: e.Status})
	}
	if len(ev.Changes) == 0 {
		return "", nil
	}
	return FormatEvent(ev), nil
}

func (c *Coordinator) noteCycle(projects, events, errs int) {
	c.statsMu.Lock()
	c.stats.Cycles++
	c.stats.LastCycle = time.Now()
	c.stats.LastProjects = projects
	c.stats.LastEvents = events
	c.stats.LastErrors = errs
	c.statsMu.Unlock()

	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: "monitor.cycle", Time: time.Now(), Data: map[string]any{
			"projects": projects, "events": events, "errors": errs,
		}})
	}
}

func (c *Coordinator) publishChange(ev *ChangeEvent) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: "monitor.change", Time: time.Now(), Data: map[string]any{
		"project": ev.ProjectID, "name": ev.ProjectName, "changes": len(ev.Changes),
	}})
}

func distinctProjects(subs map[string]ContextView) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, view := range subs {
		for _, pid := range view.Projects {
			if _, ok := seen[pid]; ok {
				continue
			}
			seen[pid] = struct{}{}
			out = append(out, pid)
		}
	}
	// Map iteration order is random; keep cycles deterministic.
	sort.Strings(out)
	return out
}
