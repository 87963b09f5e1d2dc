package services_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx    context.Context
		db     *sql.DB
		st     *store.Store
		seal   *sealer.Sealer
		creds  *services.CredentialService
		fake   *fakeCollector
		opener *fakeOpener
		orch   *services.Orchestrator
		svc    *services.CollectionService
	)

	createUnit := func(name, address string, kind models.UnitKind, withCreds bool) int64 {
		u := &models.Unit{Name: name, Address: address, Kind: kind}
		Expect(st.Units().Create(ctx, u)).To(Succeed())
		if withCreds {
			Expect(creds.Save(ctx, &models.Credentials{UnitID: u.ID, Username: "root", Password: "secret"})).To(Succeed())
		}
		return u.ID
	}

	unitStatus := func(id int64) models.CollectionStatus {
		u, err := st.Units().Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return u.CollectionStatus
	}

	latest := func(id int64) *models.CollectionDetail {
		d, err := st.Details().Latest(ctx, id, "")
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	run := func(ids []int64, limit *int) *models.CollectionTask {
		taskID, err := svc.EnqueueCollection(ctx, ids, limit)
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())
		task, err := svc.GetTaskStatus(ctx, taskID)
		Expect(err).NotTo(HaveOccurred())
		return task
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())
		st = store.NewStore(db)

		seal, err = sealer.Generate()
		Expect(err).NotTo(HaveOccurred())
		creds = services.NewCredentialService(st.Credentials(), seal)

		fake = newFakeCollector()
		opener = &fakeOpener{source: &fakeSource{}}
		registry := collector.NewRegistry().
			Register(fake, models.UnitKindLinux, models.UnitKindWindows, models.UnitKindLocal)

		orch = services.NewOrchestrator(st, registry, creds, opener, testConfig())
		svc = services.NewCollectionService(st, orch, nil)
	})

	AfterEach(func() {
		_ = db.Close()
	})

	Context("unit batches", func() {
		It("should complete a batch where every unit succeeds", func() {
			var ids []int64
			for i, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"} {
				ids = append(ids, createUnit("host"+string(rune('a'+i)), addr, models.UnitKindLinux, true))
			}

			task := run(ids, nil)
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.Progress).To(Equal(100))
			Expect(task.CompletedCount).To(Equal(5))
			Expect(task.FailedCount).To(Equal(0))
			Expect(task.CurrentRunning).To(Equal(0))
			Expect(task.StartedAt).NotTo(BeNil())
			Expect(task.CompletedAt).NotTo(BeNil())

			for _, id := range ids {
				Expect(unitStatus(id)).To(Equal(models.CollectionStatusCompleted))
				d := latest(id)
				Expect(d.Status).To(Equal(models.DetailStatusSuccess))
				Expect(d.Method).To(Equal(models.MethodAnsible))
				Expect(d.TaskID).To(Equal(task.ID))
				Expect(d.RawFacts).NotTo(BeEmpty())
			}

			u, err := st.Units().Get(ctx, ids[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Facts.Hostname).To(Equal("hosta"))
			Expect(u.Facts.OSType).To(Equal("RedHat"))
			Expect(u.Facts.CPUCores).To(Equal(4))
			Expect(u.MAC).To(Equal("52:54:00:12:34:56"))
		})

		It("should fail only the unit without credentials", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			b := createUnit("b", "10.0.0.2", models.UnitKindLinux, false)
			c := createUnit("c", "10.0.0.3", models.UnitKindLinux, true)

			task := run([]int64{a, b, c}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.CompletedCount).To(Equal(2))
			Expect(task.FailedCount).To(Equal(1))

			Expect(unitStatus(b)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(b).ErrorMessage).To(ContainSubstring("missing credentials"))
			Expect(unitStatus(a)).To(Equal(models.CollectionStatusCompleted))
			Expect(unitStatus(c)).To(Equal(models.CollectionStatusCompleted))
		})

		It("should fail the task when every unit is unreachable", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			b := createUnit("b", "10.0.0.2", models.UnitKindLinux, true)
			unreachable := collector.NewError(collector.KindUnreachable, "no route to host", nil)
			fake.set("10.0.0.1", nil, unreachable)
			fake.set("10.0.0.2", nil, unreachable)

			task := run([]int64{a, b}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusFailed))
			Expect(task.FailedCount).To(Equal(2))
			Expect(task.Progress).To(Equal(100))
			Expect(task.ErrorMessage).To(Equal("all 2 units failed"))

			for _, id := range []int64{a, b} {
				Expect(unitStatus(id)).To(Equal(models.CollectionStatusFailed))
				Expect(latest(id).ErrorMessage).To(ContainSubstring("unreachable"))
			}
		})

		It("should record a parse failure as a unit failure", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			b := createUnit("b", "10.0.0.2", models.UnitKindLinux, true)
			fake.set("10.0.0.1", []byte(`{"ansible_facts": "not an object"}`), nil)

			task := run([]int64{a, b}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(unitStatus(a)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(a).ErrorMessage).To(ContainSubstring("parsing linux facts"))
		})

		It("should keep non ASCII collector errors in the detail trail", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			fake.set("10.0.0.1", nil, errors.New(strings.Repeat("a", 999)+"é très mauvais"))

			task := run([]int64{id}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusFailed))
			Expect(task.FailedCount).To(Equal(1))
			Expect(utf8.ValidString(task.ErrorMessage)).To(BeTrue())

			Expect(unitStatus(id)).To(Equal(models.CollectionStatusFailed))
			d := latest(id)
			Expect(d.Status).To(Equal(models.DetailStatusFailed))
			Expect(d.Method).To(Equal(models.MethodAnsible))
			Expect(utf8.ValidString(d.ErrorMessage)).To(BeTrue())
			Expect(d.ErrorMessage).To(Equal(strings.Repeat("a", 999)))
		})

		It("should record a panicking collector as a unit failure", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			b := createUnit("b", "10.0.0.2", models.UnitKindLinux, true)
			c := createUnit("c", "10.0.0.3", models.UnitKindLinux, true)
			fake.panicOn = "10.0.0.2"

			task := run([]int64{a, b, c}, intPtr(1))
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.CompletedCount).To(Equal(2))
			Expect(task.FailedCount).To(Equal(1))
			Expect(task.Progress).To(Equal(100))
			Expect(fake.Calls()).To(Equal(3))

			Expect(unitStatus(b)).To(Equal(models.CollectionStatusFailed))
			d := latest(b)
			Expect(d.Status).To(Equal(models.DetailStatusFailed))
			Expect(d.Method).To(Equal(models.MethodAnsible))
			Expect(d.ErrorMessage).To(HavePrefix("panic: collector exploded on 10.0.0.2"))
			Expect(len(d.ErrorMessage)).To(BeNumerically("<=", 1000))

			Expect(unitStatus(a)).To(Equal(models.CollectionStatusCompleted))
			Expect(unitStatus(c)).To(Equal(models.CollectionStatusCompleted))
		})

		It("should skip the credential lookup for the local host", func() {
			id := createUnit("engine", "127.0.0.1", models.UnitKindLocal, false)
			fake.set("127.0.0.1", []byte(`{"hostname": "engine", "os": "linux", "cpu_cores": 8, "memory_total": 17179869184}`), nil)

			task := run([]int64{id}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(unitStatus(id)).To(Equal(models.CollectionStatusCompleted))
			Expect(latest(id).Method).To(Equal(models.MethodLocal))
		})

		It("should mark hypervisors collected without collecting them", func() {
			h := createUnit("esxi-01", "10.0.1.1", models.UnitKindHypervisor, false)
			l := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)

			task := run([]int64{h, l}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.CompletedCount).To(Equal(2))
			Expect(fake.Calls()).To(Equal(1))

			Expect(unitStatus(h)).To(Equal(models.CollectionStatusCollected))
			d := latest(h)
			Expect(d.Status).To(Equal(models.DetailStatusCollected))
			Expect(d.Method).To(Equal(models.MethodNone))
		})

		It("should fail units whose kind has no collector", func() {
			id := createUnit("vm-1", "10.0.2.1", models.UnitKindVM, true)

			task := run([]int64{id}, nil)
			Expect(task.Status).To(Equal(models.TaskStatusFailed))
			Expect(latest(id).ErrorMessage).To(ContainSubstring("no collector registered"))
		})

		It("should never exceed the concurrency limit", func() {
			fake.delay = 20 * time.Millisecond
			var ids []int64
			for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
				ids = append(ids, createUnit(addr, addr, models.UnitKindLinux, true))
			}

			task := run(ids, intPtr(2))
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.ConcurrentLimit).To(Equal(2))
			Expect(fake.Peak()).To(BeNumerically("<=", 2))
		})

		It("should reach the same statuses with limit 1 and limit N", func() {
			unreachable := collector.NewError(collector.KindUnreachable, "connection refused", nil)
			addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
			fake.set("10.0.0.2", nil, unreachable)

			outcome := func(limit int) []models.CollectionStatus {
				var ids []int64
				for _, addr := range addrs {
					u, err := st.Units().GetByAddress(ctx, addr)
					if errors.Is(err, store.ErrNotFound) {
						ids = append(ids, createUnit(addr, addr, models.UnitKindLinux, addr != "10.0.0.4"))
						continue
					}
					Expect(err).NotTo(HaveOccurred())
					ids = append(ids, u.ID)
				}
				run(ids, intPtr(limit))
				var statuses []models.CollectionStatus
				for _, id := range ids {
					statuses = append(statuses, unitStatus(id))
				}
				return statuses
			}

			serial := outcome(1)
			Expect(fake.Peak()).To(Equal(1))
			parallel := outcome(4)
			Expect(parallel).To(Equal(serial))
			Expect(serial).To(Equal([]models.CollectionStatus{
				models.CollectionStatusCompleted,
				models.CollectionStatusFailed,
				models.CollectionStatusCompleted,
				models.CollectionStatusFailed,
			}))
		})

		It("should leave no unit collecting once the task terminates", func() {
			var ids []int64
			for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
				ids = append(ids, createUnit(addr, addr, models.UnitKindLinux, addr != "10.0.0.2"))
			}
			fake.set("10.0.0.3", nil, collector.NewError(collector.KindAuth, "permission denied", nil))

			task := run(ids, nil)
			Expect(task.Status.IsTerminal()).To(BeTrue())
			for _, id := range ids {
				Expect(unitStatus(id)).NotTo(Equal(models.CollectionStatusCollecting))
				Expect(unitStatus(id).IsTerminal()).To(BeTrue())
			}
		})

		It("should fail the task when a unit is missing", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			task := &models.CollectionTask{
				ID:              "missing-units",
				Kind:            models.UnitBatch([]int64{id, 999}),
				Status:          models.TaskStatusPending,
				ConcurrentLimit: 2,
				CreatedAt:       time.Now().UTC(),
			}
			Expect(st.Tasks().Create(ctx, task)).To(Succeed())

			err := orch.RunTask(ctx, task.ID, nil)
			Expect(err).To(MatchError(store.ErrNotFound))

			got, err := st.Tasks().Get(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(models.TaskStatusFailed))
			Expect(got.ErrorMessage).To(ContainSubstring("not found"))
			Expect(got.CompletedAt).NotTo(BeNil())
			Expect(unitStatus(id)).To(Equal(models.CollectionStatusFailed))
		})

		It("should refuse to run a task twice", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			task := run([]int64{id}, nil)

			err := svc.RunTask(ctx, task.ID, nil)
			Expect(err).To(MatchError(services.ErrInvalidState))
		})
	})

	Context("progress", func() {
		It("should only move forward and end at 100", func() {
			fake.delay = 10 * time.Millisecond
			var ids []int64
			for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"} {
				ids = append(ids, createUnit(addr, addr, models.UnitKindLinux, true))
			}
			taskID, err := svc.EnqueueCollection(ctx, ids, intPtr(1))
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() { done <- svc.RunTask(ctx, taskID, nil) }()

			var seen []int
			Eventually(func(g Gomega) models.TaskStatus {
				task, err := svc.GetTaskStatus(ctx, taskID)
				g.Expect(err).NotTo(HaveOccurred())
				seen = append(seen, task.Progress)
				return task.Status
			}).WithTimeout(5 * time.Second).WithPolling(2 * time.Millisecond).Should(Equal(models.TaskStatusCompleted))
			Eventually(done).Should(Receive(BeNil()))

			for i := 1; i < len(seen); i++ {
				Expect(seen[i]).To(BeNumerically(">=", seen[i-1]))
			}
			Expect(seen[len(seen)-1]).To(Equal(100))
		})
	})

	Context("reconciliation", func() {
		It("should force fail units left collecting and be idempotent", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			b := createUnit("b", "10.0.0.2", models.UnitKindLinux, true)
			task := &models.CollectionTask{
				ID:              "stale",
				Kind:            models.UnitBatch([]int64{a, b}),
				Status:          models.TaskStatusPending,
				ConcurrentLimit: 1,
				CreatedAt:       time.Now().UTC(),
			}
			Expect(st.Tasks().Create(ctx, task)).To(Succeed())
			Expect(st.Units().SetStatus(ctx, a, models.CollectionStatusCollecting, nil)).To(Succeed())

			forced, err := orch.Reconcile(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(forced).To(Equal(2))

			Expect(unitStatus(a)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(a).ErrorMessage).To(Equal("collection task did not complete for this unit"))
			Expect(latest(a).Method).To(Equal(models.MethodReconcile))
			Expect(unitStatus(b)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(b).ErrorMessage).To(Equal("unit was not processed during collection task execution"))

			before, err := st.Details().ListByTask(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())

			forced, err = orch.Reconcile(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(forced).To(BeZero())

			after, err := st.Details().ListByTask(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(HaveLen(len(before)))
		})

		It("should change nothing after a clean run", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			task := run([]int64{id}, nil)

			forced, err := orch.Reconcile(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(forced).To(BeZero())
			Expect(unitStatus(id)).To(Equal(models.CollectionStatusCompleted))
		})
	})

	Context("cancellation", func() {
		It("should stop dispatching and keep the task cancelled", func() {
			fake.block = make(chan struct{})
			var ids []int64
			for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
				ids = append(ids, createUnit(addr, addr, models.UnitKindLinux, true))
			}
			taskID, err := svc.EnqueueCollection(ctx, ids, intPtr(1))
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() { done <- svc.RunTask(ctx, taskID, nil) }()

			Eventually(fake.Calls).Should(Equal(1))
			_, err = svc.Cancel(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusCancelled))
			Expect(task.Progress).To(Equal(100))
			Expect(task.CompletedAt).NotTo(BeNil())
			Expect(fake.Calls()).To(Equal(1))

			for _, id := range ids {
				Expect(unitStatus(id)).To(Equal(models.CollectionStatusFailed))
			}
		})

		It("should cancel a pending task right away", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			taskID, err := svc.EnqueueCollection(ctx, []int64{id}, nil)
			Expect(err).NotTo(HaveOccurred())

			task, err := svc.Cancel(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusCancelled))
			Expect(task.CompletedAt).NotTo(BeNil())

			err = svc.RunTask(ctx, taskID, nil)
			Expect(err).To(MatchError(services.ErrInvalidState))
			Expect(fake.Calls()).To(BeZero())
		})
	})

	Context("reconciling terminated tasks", func() {
		It("should leave the counters of a task cancelled before it started", func() {
			id := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			taskID, err := svc.EnqueueCollection(ctx, []int64{id}, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Cancel(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())

			forced, err := orch.Reconcile(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(forced).To(BeZero())

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusCancelled))
			Expect(task.FailedCount).To(BeZero())
			Expect(unitStatus(id)).To(Equal(models.CollectionStatusNotCollected))
		})

		It("should repair units left collecting without counting them again", func() {
			a := createUnit("a", "10.0.0.1", models.UnitKindLinux, true)
			task := run([]int64{a}, nil)
			Expect(task.CompletedCount).To(Equal(1))
			Expect(st.Units().SetStatus(ctx, a, models.CollectionStatusCollecting, nil)).To(Succeed())

			forced, err := orch.Reconcile(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(forced).To(Equal(1))
			Expect(unitStatus(a)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(a).Method).To(Equal(models.MethodReconcile))

			after, err := svc.GetTaskStatus(ctx, task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.CompletedCount).To(Equal(1))
			Expect(after.FailedCount).To(BeZero())
			Expect(after.Status).To(Equal(models.TaskStatusCompleted))
		})
	})

	Context("platform sync", func() {
		var platform *models.Platform

		BeforeEach(func() {
			password, err := seal.Seal("vc-secret")
			Expect(err).NotTo(HaveOccurred())
			platform = &models.Platform{Name: "vcenter", Type: models.PlatformTypeVMware, Host: "vc.example.com", Username: "admin@vsphere.local", Password: password}
			Expect(st.Platforms().Create(ctx, platform)).To(Succeed())

			opener.source = &fakeSource{
				vms: []models.VMRecord{
					vmRecord("web-01", "4215a2b1-0000-0000-0000-000000000001", "10.0.2.1"),
					vmRecord("db-01", "4215a2b1-0000-0000-0000-000000000002", "10.0.2.2"),
				},
				hosts: []models.HypervisorRecord{
					hypervisorRecord("esxi-01", "10.0.1.1"),
					hypervisorRecord("esxi-02", "10.0.1.2"),
				},
			}
		})

		It("should sync hypervisors and match units to virtual machines", func() {
			web := createUnit("web-01", "web-01.example.com", models.UnitKindVM, false)
			db1 := createUnit("database", "10.0.2.2", models.UnitKindVM, false)
			ghost := createUnit("ghost", "10.0.9.9", models.UnitKindVM, false)

			taskID, err := svc.EnqueuePlatformSync(ctx, platform.ID, []int64{web, db1, ghost}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
			Expect(task.ConcurrentLimit).To(Equal(1))
			Expect(task.CompletedCount).To(Equal(2))
			Expect(task.FailedCount).To(Equal(1))
			Expect(opener.source.closed).To(BeTrue())

			for _, id := range []int64{web, db1} {
				u, err := st.Units().Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(u.CollectionStatus).To(Equal(models.CollectionStatusCompleted))
				Expect(u.Source).To(Equal(models.UnitSourcePlatform))
				Expect(u.SourcePlatformID).To(HaveValue(Equal(platform.ID)))
				Expect(u.Facts.VTPlatform).To(Equal("VMware"))
				Expect(u.Facts.BootType).To(Equal("UEFI"))
				Expect(latest(id).Method).To(Equal(models.MethodVMwarePlatform))
			}

			Expect(unitStatus(ghost)).To(Equal(models.CollectionStatusFailed))
			Expect(latest(ghost).ErrorMessage).To(Equal("no matching virtual machine found on platform"))

			hosts, err := st.Units().ListByPlatform(ctx, platform.ID)
			Expect(err).NotTo(HaveOccurred())
			var hypervisors []models.Unit
			for _, h := range hosts {
				if h.Kind == models.UnitKindHypervisor {
					hypervisors = append(hypervisors, h)
				}
			}
			Expect(hypervisors).To(HaveLen(2))
			for _, h := range hypervisors {
				Expect(h.CollectionStatus).To(Equal(models.CollectionStatusCollected))
				Expect(h.Facts.DeviceType).To(Equal("hypervisor"))
				Expect(latest(h.ID).Method).To(Equal(models.MethodPlatformSync))
			}
		})

		It("should update hypervisors on a second sync", func() {
			source := opener.source
			stats, err := orch.SyncHypervisors(ctx, "first", platform, source)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Synced).To(Equal(2))
			Expect(stats.Updated).To(BeZero())

			stats, err = orch.SyncHypervisors(ctx, "second", platform, source)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Synced).To(BeZero())
			Expect(stats.Updated).To(Equal(2))

			u, err := st.Units().GetByAddress(ctx, "10.0.1.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Name).To(Equal("esxi-01"))
		})

		It("should count hypervisors that cannot be parsed", func() {
			source := &fakeSource{hosts: []models.HypervisorRecord{
				hypervisorRecord("esxi-01", "10.0.1.1"),
				{Name: "broken", Raw: []byte(`{}`)},
			}}
			stats, err := orch.SyncHypervisors(ctx, "t", platform, source)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Synced).To(Equal(1))
			Expect(stats.Failed).To(Equal(1))
			Expect(stats.FailedItems).To(ConsistOf("broken"))
		})

		It("should reject a second active sync of the same platform", func() {
			first, err := svc.EnqueuePlatformSync(ctx, platform.ID, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			second, err := svc.EnqueuePlatformSync(ctx, platform.ID, nil, nil)
			Expect(err).To(MatchError(services.ErrSyncInProgress))
			Expect(second).To(Equal(first))
		})

		It("should fail the task when the platform cannot be listed", func() {
			id := createUnit("web-01", "10.0.2.1", models.UnitKindVM, false)
			opener.source.listErr = errors.New("session expired")

			taskID, err := svc.EnqueuePlatformSync(ctx, platform.ID, []int64{id}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(MatchError(ContainSubstring("session expired")))

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusFailed))
			Expect(task.ErrorMessage).To(ContainSubstring("session expired"))
			Expect(unitStatus(id)).To(Equal(models.CollectionStatusFailed))
		})

		It("should fail the task for an unsupported platform type", func() {
			other := &models.Platform{Name: "rhv", Type: models.PlatformType("ovirt"), Host: "rhv.example.com", Username: "admin"}
			Expect(st.Platforms().Create(ctx, other)).To(Succeed())

			vsOrch := services.NewOrchestrator(st, collector.NewRegistry(), creds, services.NewVSphereOpener(seal, time.Second), testConfig())
			taskID, err := services.NewCollectionService(st, vsOrch, nil).EnqueuePlatformSync(ctx, other.ID, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			err = vsOrch.RunTask(ctx, taskID, nil)
			Expect(err).To(MatchError(services.ErrUnsupportedPlatform))

			task, err := st.Tasks().Get(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusFailed))
			Expect(task.ErrorMessage).To(ContainSubstring("unsupported platform type"))
		})
	})
})
