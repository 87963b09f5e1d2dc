package services_test

import (
	"context"
	"database/sql"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
	"github.com/kubev2v/inventory-collector/pkg/scheduler"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

var _ = Describe("CollectionService", func() {
	var (
		ctx   context.Context
		db    *sql.DB
		st    *store.Store
		creds *services.CredentialService
		fake  *fakeCollector
		sched *scheduler.Scheduler
		svc   *services.CollectionService
		ids   []int64
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())
		st = store.NewStore(db)

		seal, err := sealer.Generate()
		Expect(err).NotTo(HaveOccurred())
		creds = services.NewCredentialService(st.Credentials(), seal)

		fake = newFakeCollector()
		registry := collector.NewRegistry().Register(fake, models.UnitKindLinux)
		orch := services.NewOrchestrator(st, registry, creds, &fakeOpener{}, testConfig())

		sched = scheduler.NewScheduler(1)
		svc = services.NewCollectionService(st, orch, sched)

		ids = nil
		for _, addr := range []string{"10.0.0.1", "10.0.0.2"} {
			u := &models.Unit{Name: addr, Address: addr, Kind: models.UnitKindLinux}
			Expect(st.Units().Create(ctx, u)).To(Succeed())
			Expect(creds.Save(ctx, &models.Credentials{UnitID: u.ID, Username: "root", Password: "secret"})).To(Succeed())
			ids = append(ids, u.ID)
		}
	})

	AfterEach(func() {
		sched.Close()
		_ = db.Close()
	})

	Describe("EnqueueCollection", func() {
		It("should create a pending task with the default limit", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusPending))
			Expect(task.ConcurrentLimit).To(Equal(5))
			Expect(task.Kind.UnitIDs).To(ConsistOf(ids[0], ids[1]))
			Expect(task.Progress).To(BeZero())
		})

		It("should collapse duplicate unit ids", func() {
			taskID, err := svc.EnqueueCollection(ctx, []int64{ids[0], ids[0], ids[1]}, nil)
			Expect(err).NotTo(HaveOccurred())

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Total()).To(Equal(2))
		})

		DescribeTable("rejected requests",
			func(unitIDs func() []int64, limit *int, expected error) {
				_, err := svc.EnqueueCollection(ctx, unitIDs(), limit)
				Expect(err).To(MatchError(expected))
			},
			Entry("no units", func() []int64 { return nil }, nil, services.ErrInvalidRequest),
			Entry("zero limit", func() []int64 { return ids }, intPtr(0), services.ErrInvalidRequest),
			Entry("negative limit", func() []int64 { return ids }, intPtr(-2), services.ErrInvalidRequest),
			Entry("unknown unit", func() []int64 { return []int64{ids[0], 4242} }, nil, store.ErrNotFound),
		)
	})

	Describe("Schedule", func() {
		It("should run the task in the background", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())

			future, err := svc.Schedule(taskID, nil)
			Expect(err).NotTo(HaveOccurred())

			result, err := future.Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Data).To(Equal(taskID))

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusCompleted))
		})
	})

	Describe("Results", func() {
		It("should report the latest detail of each unit", func() {
			fake.set("10.0.0.2", nil, collector.NewError(collector.KindAuth, "permission denied (publickey)", nil))
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())

			results, err := svc.Results(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			Expect(results[0].UnitID).To(Equal(ids[0]))
			Expect(results[0].CollectionStatus).To(Equal(models.CollectionStatusCompleted))
			Expect(results[0].Detail.Status).To(Equal(models.DetailStatusSuccess))

			Expect(results[1].CollectionStatus).To(Equal(models.CollectionStatusFailed))
			Expect(results[1].Detail.ErrorMessage).To(ContainSubstring("permission denied"))
		})

		It("should leave the detail empty for units not yet processed", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())

			results, err := svc.Results(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Detail).To(BeNil())
			Expect(results[0].CollectionStatus).To(Equal(models.CollectionStatusNotCollected))
		})
	})

	Describe("Retry", func() {
		It("should reschedule a failed task", func() {
			unreachable := collector.NewError(collector.KindUnreachable, "no route to host", nil)
			fake.set("10.0.0.1", nil, unreachable)
			fake.set("10.0.0.2", nil, unreachable)

			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())

			task, err := svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusFailed))

			fake.set("10.0.0.1", linuxFacts("a", "10.0.0.1"), nil)
			fake.set("10.0.0.2", linuxFacts("b", "10.0.0.2"), nil)

			task, err = svc.Retry(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Status).To(Equal(models.TaskStatusPending))

			Eventually(func(g Gomega) models.TaskStatus {
				t, err := svc.GetTaskStatus(ctx, taskID)
				g.Expect(err).NotTo(HaveOccurred())
				return t.Status
			}).WithTimeout(5 * time.Second).Should(Equal(models.TaskStatusCompleted))

			task, err = svc.GetTaskStatus(ctx, taskID)
			Expect(err).NotTo(HaveOccurred())
			Expect(task.CompletedCount).To(Equal(2))
			Expect(task.FailedCount).To(BeZero())
		})

		It("should refuse to retry a completed task", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())

			_, err = svc.Retry(ctx, taskID)
			Expect(err).To(MatchError(services.ErrInvalidState))
		})
	})

	Describe("Delete", func() {
		It("should delete a terminated task", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, taskID, nil)).To(Succeed())

			Expect(svc.Delete(ctx, taskID)).To(Succeed())
			_, err = svc.GetTaskStatus(ctx, taskID)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("should refuse to delete a pending task", func() {
			taskID, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, taskID)).To(MatchError(services.ErrInvalidState))
		})
	})

	Describe("ListTasks", func() {
		It("should filter by status", func() {
			done, err := svc.EnqueueCollection(ctx, ids, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RunTask(ctx, done, nil)).To(Succeed())
			pending, err := svc.EnqueueCollection(ctx, ids[:1], nil)
			Expect(err).NotTo(HaveOccurred())

			all, err := svc.ListTasks(ctx, models.TaskFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))

			status := models.TaskStatusPending
			filtered, err := svc.ListTasks(ctx, models.TaskFilter{Status: &status})
			Expect(err).NotTo(HaveOccurred())
			Expect(filtered).To(HaveLen(1))
			Expect(filtered[0].ID).To(Equal(pending))
		})
	})
})
