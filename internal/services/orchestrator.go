package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/facts"
	"github.com/kubev2v/inventory-collector/internal/matcher"
	"github.com/kubev2v/inventory-collector/internal/metrics"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
)

type OrchestratorConfig struct {
	DefaultLimit    int
	UnitTimeout     time.Duration
	SyncSoftTimeout time.Duration
	SyncHardTimeout time.Duration
	ProgressRetry   RetryPolicy
	WriteRetry      RetryPolicy
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DefaultLimit:    5,
		UnitTimeout:     5 * time.Minute,
		SyncSoftTimeout: 30 * time.Minute,
		SyncHardTimeout: 35 * time.Minute,
		ProgressRetry:   DefaultProgressRetry,
		WriteRetry:      DefaultWriteRetry,
	}
}

// Orchestrator runs collection tasks: it fans units out to collectors under
// the task concurrency limit, records every outcome and reconciles whatever
// the run left behind.
type Orchestrator struct {
	store      *store.Store
	tracker    *ProgressTracker
	writer     *FactWriter
	collectors *collector.Registry
	creds      CredentialProvider
	platforms  PlatformOpener
	cfg        OrchestratorConfig
}

func NewOrchestrator(st *store.Store, collectors *collector.Registry, creds CredentialProvider, platforms PlatformOpener, cfg OrchestratorConfig) *Orchestrator {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 5
	}
	return &Orchestrator{
		store:      st,
		tracker:    NewProgressTracker(st.Tasks(), cfg.ProgressRetry),
		writer:     NewFactWriter(st.Units(), cfg.WriteRetry),
		collectors: collectors,
		creds:      creds,
		platforms:  platforms,
		cfg:        cfg,
	}
}

func (o *Orchestrator) Tracker() *ProgressTracker {
	return o.tracker
}

// processedSet records the units handled by the current run.
type processedSet struct {
	mu  sync.Mutex
	ids sets.Set[int64]
}

func newProcessedSet() *processedSet {
	return &processedSet{ids: sets.New[int64]()}
}

func (p *processedSet) Insert(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids.Insert(id)
}

func (p *processedSet) Has(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids.Has(id)
}

// RunTask executes the task synchronously. limit overrides the task limit.
func (o *Orchestrator) RunTask(ctx context.Context, taskID string, limit *int) error {
	log := zap.S().Named("orchestrator").With("task_id", taskID)
	bg := context.WithoutCancel(ctx)

	task, err := o.store.Tasks().Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("loading task %s: %w", taskID, err)
	}

	n := o.resolveLimit(limit, task)
	task, err = o.tracker.Start(ctx, taskID, n)
	if err != nil {
		return fmt.Errorf("starting task %s: %w", taskID, err)
	}
	log.Infow("task started", "kind", task.Kind.Type, "units", task.Total(), "limit", n)

	metrics.RunningTasks.Inc()
	defer metrics.RunningTasks.Dec()

	processed := newProcessedSet()
	runErr := o.safeRun(ctx, task, n, processed)

	if runErr == nil {
		if _, err := o.reconcile(bg, task, processed); err != nil {
			runErr = fmt.Errorf("reconciling task: %w", err)
		}
	}

	if runErr != nil {
		log.Errorw("task failed", "error", runErr)
		if _, err := o.reconcile(bg, task, processed); err != nil {
			log.Warnw("best effort reconciliation failed", "error", err)
		}
		msg := runErr.Error()
		var pe *panicError
		if !errors.As(runErr, &pe) {
			msg += "\n" + truncate(string(debug.Stack()), maxStackLength)
		}
		if _, err := o.tracker.Fail(bg, taskID, msg); err != nil {
			log.Errorw("failed to mark task failed", "error", err)
		}
		return runErr
	}

	final, err := o.tracker.Finish(bg, taskID)
	if err != nil {
		return fmt.Errorf("finishing task %s: %w", taskID, err)
	}
	log.Infow("task finished", "status", final.Status, "completed", final.CompletedCount, "failed", final.FailedCount)
	return nil
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.value, e.stack)
}

func (o *Orchestrator) safeRun(ctx context.Context, task *models.CollectionTask, limit int, processed *processedSet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: truncate(string(debug.Stack()), maxStackLength)}
		}
	}()
	if task.Kind.IsPlatformSync() {
		return o.runPlatformSync(ctx, task, limit, processed)
	}
	return o.runBatch(ctx, task, limit, processed)
}

func (o *Orchestrator) resolveLimit(override *int, task *models.CollectionTask) int {
	switch {
	case override != nil && *override > 0:
		return *override
	case task.ConcurrentLimit > 0:
		return task.ConcurrentLimit
	default:
		return o.cfg.DefaultLimit
	}
}

func (o *Orchestrator) runBatch(ctx context.Context, task *models.CollectionTask, limit int, processed *processedSet) error {
	if task.Total() == 0 {
		return nil
	}

	units, err := o.loadUnits(ctx, task.Kind.UnitIDs)
	if err != nil {
		return err
	}
	o.premark(ctx, units)

	bg := context.WithoutCancel(ctx)
	collectable := make([]models.Unit, 0, len(units))
	for _, u := range units {
		if u.Kind != models.UnitKindHypervisor {
			collectable = append(collectable, u)
			continue
		}
		// hypervisors are fed by platform sync
		detail := &models.CollectionDetail{
			TaskID:      task.ID,
			Status:      models.DetailStatusCollected,
			Method:      models.MethodNone,
			CollectedAt: time.Now().UTC(),
		}
		ok := true
		if err := o.writer.RecordOutcome(bg, u.ID, models.CollectionStatusCollected, detail); err != nil {
			zap.S().Named("orchestrator").Warnw("failed to mark hypervisor collected", "unit_id", u.ID, "error", err)
			ok = false
		}
		processed.Insert(u.ID)
		o.count(bg, task.ID, ok, nil)
	}

	return o.dispatch(ctx, task, limit, collectable, processed, func(ctx context.Context, u models.Unit) bool {
		return o.processUnit(ctx, task.ID, u)
	})
}

// dispatch runs job for every unit with at most limit jobs in flight. No new
// job starts once ctx is done.
func (o *Orchestrator) dispatch(ctx context.Context, task *models.CollectionTask, limit int, units []models.Unit, processed *processedSet, job func(context.Context, models.Unit) bool) error {
	bg := context.WithoutCancel(ctx)

	var (
		g        errgroup.Group
		inflight atomic.Int32
	)
	g.SetLimit(limit)

	for _, u := range units {
		if ctx.Err() != nil {
			zap.S().Named("orchestrator").Infow("dispatch stopped", "task_id", task.ID, "reason", ctx.Err())
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			inflight.Add(1)
			ok := job(ctx, u)
			processed.Insert(u.ID)
			running := int(inflight.Add(-1))
			o.count(bg, task.ID, ok, &running)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) count(ctx context.Context, taskID string, ok bool, running *int) {
	delta := ProgressDelta{Running: running}
	if ok {
		delta.Completed = 1
		metrics.UnitsTotal.WithLabelValues("success").Inc()
	} else {
		delta.Failed = 1
		metrics.UnitsTotal.WithLabelValues("failed").Inc()
	}
	if err := o.tracker.UpdateProgress(ctx, taskID, delta); err != nil {
		zap.S().Named("orchestrator").Warnw("progress update failed", "task_id", taskID, "error", err)
	}
}

// processUnit collects one unit and records the outcome. It reports whether
// the unit succeeded.
func (o *Orchestrator) processUnit(ctx context.Context, taskID string, u models.Unit) (ok bool) {
	bg := context.WithoutCancel(ctx)
	method := methodFor(u.Kind)
	log := zap.S().Named("orchestrator").With("task_id", taskID, "unit_id", u.ID)

	start := time.Now()
	defer func() {
		metrics.UnitCollectDuration.WithLabelValues(string(u.Kind)).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("unit job panicked", "panic", r)
			o.recordFailure(bg, taskID, u.ID, method, fmt.Sprintf("panic: %v\n%s", r, truncate(string(debug.Stack()), maxStackLength)))
			ok = false
		}
	}()

	params := collector.ConnectionParams{UnitID: u.ID, Name: u.Name, Address: u.Address, Kind: u.Kind}
	if u.Kind != models.UnitKindLocal {
		creds, err := o.creds.Lookup(ctx, u.ID)
		if errors.Is(err, store.ErrNotFound) {
			o.recordFailure(bg, taskID, u.ID, method, fmt.Sprintf("%s: no credentials stored for unit %d", ErrMissingCredentials, u.ID))
			return false
		}
		if err != nil {
			o.recordFailure(bg, taskID, u.ID, method, fmt.Sprintf("looking up credentials: %v", err))
			return false
		}
		params.Credentials = creds
	}

	now := time.Now().UTC()
	if err := o.store.Units().SetStatus(bg, u.ID, models.CollectionStatusCollecting, &now); err != nil {
		log.Debugw("failed to mark unit collecting", "error", err)
	}

	c, err := o.collectors.For(u.Kind)
	if err != nil {
		o.recordFailure(bg, taskID, u.ID, method, err.Error())
		return false
	}

	unitCtx, cancel := context.WithTimeout(ctx, o.cfg.UnitTimeout)
	defer cancel()

	raw, err := c.Collect(unitCtx, params)
	if err != nil {
		log.Infow("collection failed", "kind", collector.KindOf(err), "error", err)
		o.recordFailure(bg, taskID, u.ID, method, err.Error())
		return false
	}

	return o.persist(bg, taskID, u.ID, u.Kind, method, raw)
}

// persist normalizes raw and writes it onto the unit.
func (o *Orchestrator) persist(ctx context.Context, taskID string, unitID int64, kind models.UnitKind, method string, raw []byte) bool {
	nf, err := facts.Normalize(raw, kind)
	if err != nil {
		o.recordFailure(ctx, taskID, unitID, method, err.Error())
		return false
	}

	detail := &models.CollectionDetail{
		TaskID:      taskID,
		Status:      models.DetailStatusSuccess,
		Method:      method,
		RawFacts:    raw,
		CollectedAt: time.Now().UTC(),
	}
	if err := o.writer.Write(ctx, unitID, nf, models.CollectionStatusCompleted, detail); err != nil {
		o.recordFailure(ctx, taskID, unitID, method, fmt.Sprintf("writing facts: %v", err))
		return false
	}
	return true
}

func (o *Orchestrator) recordFailure(ctx context.Context, taskID string, unitID int64, method, msg string) {
	detail := &models.CollectionDetail{
		TaskID:       taskID,
		Status:       models.DetailStatusFailed,
		Method:       method,
		ErrorMessage: truncate(msg, maxErrorLength),
		CollectedAt:  time.Now().UTC(),
	}
	if err := o.writer.RecordOutcome(ctx, unitID, models.CollectionStatusFailed, detail); err != nil {
		zap.S().Named("orchestrator").Errorw("failed to record unit failure", "task_id", taskID, "unit_id", unitID, "error", err)
	}
}

// Reconcile fails every unit of the task still collecting, or never touched.
// Running it again changes nothing. On a terminated task only units left
// collecting are repaired and the counters stay as they are: units of a task
// cancelled before it started were never attempted and keep their status.
func (o *Orchestrator) Reconcile(ctx context.Context, taskID string) (int, error) {
	task, err := o.store.Tasks().Get(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.Status.IsTerminal() {
		return o.repair(ctx, task)
	}
	return o.reconcile(ctx, task, newProcessedSet())
}

// repair fails units of a terminated task that are still collecting.
func (o *Orchestrator) repair(ctx context.Context, task *models.CollectionTask) (int, error) {
	if task.Total() == 0 {
		return 0, nil
	}
	units, err := o.store.Units().List(ctx, task.Kind.UnitIDs)
	if err != nil {
		return 0, err
	}

	forced := 0
	for _, u := range units {
		if u.CollectionStatus != models.CollectionStatusCollecting {
			continue
		}
		if err := o.forceFail(ctx, task.ID, u.ID, msgDidNotComplete); err != nil {
			return forced, err
		}
		forced++
	}
	return forced, nil
}

func (o *Orchestrator) forceFail(ctx context.Context, taskID string, unitID int64, msg string) error {
	detail := &models.CollectionDetail{
		TaskID:       taskID,
		Status:       models.DetailStatusFailed,
		Method:       models.MethodReconcile,
		ErrorMessage: msg,
		CollectedAt:  time.Now().UTC(),
	}
	if err := o.writer.RecordOutcome(ctx, unitID, models.CollectionStatusFailed, detail); err != nil {
		return fmt.Errorf("reconciling unit %d: %w", unitID, err)
	}
	zap.S().Named("orchestrator").Warnw("unit force failed", "task_id", taskID, "unit_id", unitID, "reason", msg)
	return nil
}

func (o *Orchestrator) reconcile(ctx context.Context, task *models.CollectionTask, processed *processedSet) (int, error) {
	if task.Total() == 0 {
		return 0, nil
	}
	units, err := o.store.Units().List(ctx, task.Kind.UnitIDs)
	if err != nil {
		return 0, err
	}

	log := zap.S().Named("orchestrator").With("task_id", task.ID)
	forced := 0
	for _, u := range units {
		var msg string
		switch {
		case u.CollectionStatus == models.CollectionStatusCollecting:
			msg = msgDidNotComplete
		case u.CollectionStatus == models.CollectionStatusNotCollected && !processed.Has(u.ID):
			msg = msgNotProcessed
		default:
			continue
		}

		if err := o.forceFail(ctx, task.ID, u.ID, msg); err != nil {
			return forced, err
		}
		forced++

		if !processed.Has(u.ID) {
			processed.Insert(u.ID)
			if err := o.tracker.UpdateProgress(ctx, task.ID, ProgressDelta{Failed: 1}); err != nil {
				log.Warnw("progress update failed", "error", err)
			}
		}
	}
	return forced, nil
}

func (o *Orchestrator) loadUnits(ctx context.Context, ids []int64) ([]models.Unit, error) {
	units, err := o.store.Units().List(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading units: %w", err)
	}
	found := sets.New[int64]()
	for _, u := range units {
		found.Insert(u.ID)
	}
	if missing := sets.New(ids...).Difference(found); missing.Len() > 0 {
		return nil, fmt.Errorf("units %v: %w", sets.List(missing), store.ErrNotFound)
	}
	return units, nil
}

func (o *Orchestrator) premark(ctx context.Context, units []models.Unit) {
	for _, u := range units {
		if u.Kind == models.UnitKindHypervisor {
			continue
		}
		if err := o.store.Units().SetStatus(ctx, u.ID, models.CollectionStatusCollecting, nil); err != nil {
			zap.S().Named("orchestrator").Warnw("failed to pre-mark unit", "unit_id", u.ID, "error", err)
		}
	}
}

func methodFor(kind models.UnitKind) string {
	switch kind {
	case models.UnitKindLinux, models.UnitKindWindows:
		return models.MethodAnsible
	case models.UnitKindLocal:
		return models.MethodLocal
	case models.UnitKindVM:
		return models.MethodVMwarePlatform
	default:
		return models.MethodNone
	}
}

// runPlatformSync lists the platform once, syncs its hypervisors and matches
// the task units to its virtual machines.
func (o *Orchestrator) runPlatformSync(ctx context.Context, task *models.CollectionTask, limit int, processed *processedSet) error {
	log := zap.S().Named("platform").With("task_id", task.ID, "platform_id", task.Kind.PlatformID)
	bg := context.WithoutCancel(ctx)

	platform, err := o.store.Platforms().Get(ctx, task.Kind.PlatformID)
	if err != nil {
		return fmt.Errorf("loading platform %d: %w", task.Kind.PlatformID, err)
	}

	hardCtx, cancel := context.WithTimeout(ctx, o.cfg.SyncHardTimeout)
	defer cancel()
	soft := time.AfterFunc(o.cfg.SyncSoftTimeout, func() {
		log.Warnw("platform sync exceeded its soft time limit", "limit", o.cfg.SyncSoftTimeout)
	})
	defer soft.Stop()

	src, err := o.platforms.Open(hardCtx, platform)
	if err != nil {
		return fmt.Errorf("opening platform %s: %w", platform.Name, err)
	}
	defer func() {
		if err := src.Close(bg); err != nil {
			log.Debugw("closing platform session", "error", err)
		}
	}()

	vms, err := src.ListVMs(hardCtx)
	if err != nil {
		return fmt.Errorf("listing virtual machines of %s: %w", platform.Name, err)
	}
	log.Infow("platform listed", "vms", len(vms))

	stats, err := o.SyncHypervisors(hardCtx, task.ID, platform, src)
	if err != nil {
		log.Warnw("hypervisor sync failed", "error", err)
	} else {
		log.Infow("hypervisors synced", "synced", stats.Synced, "updated", stats.Updated, "failed", stats.Failed)
	}

	if task.Total() > 0 {
		units, err := o.loadUnits(ctx, task.Kind.UnitIDs)
		if err != nil {
			return err
		}
		o.premark(ctx, units)

		matches, unmatched := matcher.MatchUnits(vms, units)
		for _, u := range unmatched {
			o.recordFailure(bg, task.ID, u.ID, models.MethodVMwarePlatform, msgNoMatchingVM)
			processed.Insert(u.ID)
			o.count(bg, task.ID, false, nil)
		}

		byUnit := make(map[int64]matcher.Match, len(matches))
		matched := make([]models.Unit, 0, len(matches))
		for _, m := range matches {
			byUnit[m.Unit.ID] = m
			matched = append(matched, m.Unit)
		}
		err = o.dispatch(hardCtx, task, limit, matched, processed, func(ctx context.Context, u models.Unit) bool {
			return o.applyMatch(ctx, task.ID, platform, byUnit[u.ID])
		})
		if err != nil {
			return err
		}
	}

	if errors.Is(hardCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("platform sync exceeded its hard time limit of %s", o.cfg.SyncHardTimeout)
	}
	return nil
}

func (o *Orchestrator) applyMatch(ctx context.Context, taskID string, platform *models.Platform, m matcher.Match) (ok bool) {
	bg := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			o.recordFailure(bg, taskID, m.Unit.ID, models.MethodVMwarePlatform, fmt.Sprintf("panic: %v\n%s", r, truncate(string(debug.Stack()), maxStackLength)))
			ok = false
		}
	}()

	u := m.Unit
	u.Source = models.UnitSourcePlatform
	u.SourcePlatformID = &platform.ID
	if u.HardwareUUID == "" {
		u.HardwareUUID = m.VM.UUID
	}
	if err := o.store.Units().UpdateIdentity(bg, &u); err != nil {
		o.recordFailure(bg, taskID, u.ID, models.MethodVMwarePlatform, fmt.Sprintf("updating unit identity: %v", err))
		return false
	}
	return o.persist(bg, taskID, u.ID, models.UnitKindVM, models.MethodVMwarePlatform, m.VM.Raw)
}

// SyncHypervisors upserts the platform hosts as collected hypervisor units.
func (o *Orchestrator) SyncHypervisors(ctx context.Context, taskID string, platform *models.Platform, src PlatformSource) (*models.SyncStats, error) {
	hosts, err := src.ListHypervisors(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hypervisors: %w", err)
	}

	stats := &models.SyncStats{}
	for _, h := range hosts {
		updated, err := o.syncHypervisor(ctx, taskID, platform, h)
		if err != nil {
			zap.S().Named("platform").Warnw("hypervisor sync failed", "host", h.Name, "error", err)
			stats.Failed++
			stats.FailedItems = append(stats.FailedItems, h.Name)
			continue
		}
		if updated {
			stats.Updated++
		} else {
			stats.Synced++
		}
	}
	return stats, nil
}

func (o *Orchestrator) syncHypervisor(ctx context.Context, taskID string, platform *models.Platform, h models.HypervisorRecord) (bool, error) {
	nf, err := facts.Normalize(h.Raw, models.UnitKindHypervisor)
	if err != nil {
		return false, err
	}

	address := h.Address
	if address == "" {
		address = h.Name
	}

	updated := true
	unit, err := o.store.Units().GetByAddress(ctx, address)
	switch {
	case errors.Is(err, store.ErrNotFound):
		updated = false
		unit = &models.Unit{
			Name:             h.Name,
			Address:          address,
			HardwareUUID:     h.UUID,
			Kind:             models.UnitKindHypervisor,
			Source:           models.UnitSourcePlatform,
			SourcePlatformID: &platform.ID,
			CollectionStatus: models.CollectionStatusCollected,
		}
		if err := o.store.Units().Create(ctx, unit); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	default:
		unit.Name = h.Name
		unit.HardwareUUID = h.UUID
		unit.Kind = models.UnitKindHypervisor
		unit.Source = models.UnitSourcePlatform
		unit.SourcePlatformID = &platform.ID
		if err := o.store.Units().UpdateIdentity(ctx, unit); err != nil {
			return false, err
		}
	}

	detail := &models.CollectionDetail{
		TaskID:      taskID,
		Status:      models.DetailStatusCollected,
		Method:      models.MethodPlatformSync,
		RawFacts:    h.Raw,
		CollectedAt: time.Now().UTC(),
	}
	if err := o.writer.Write(ctx, unit.ID, nf, models.CollectionStatusCollected, detail); err != nil {
		return false, err
	}
	return updated, nil
}
