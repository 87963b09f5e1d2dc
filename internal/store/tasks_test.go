package store_test

import (
	"context"
	"database/sql"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
)

func newTask(id string, kind models.TaskKind) *models.CollectionTask {
	return &models.CollectionTask{
		ID:              id,
		Kind:            kind,
		Status:          models.TaskStatusPending,
		ConcurrentLimit: 5,
		CreatedAt:       time.Now().UTC(),
	}
}

var _ = Describe("TaskStore", func() {
	var (
		ctx context.Context
		s   *store.Store
		db  *sql.DB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())

		s = store.NewStore(db)
	})

	AfterEach(func() {
		_ = db.Close()
	})

	It("should round trip a unit batch", func() {
		task := newTask("t1", models.UnitBatch([]int64{3, 1, 2}))
		Expect(s.Tasks().Create(ctx, task)).To(Succeed())
		Expect(task.Version).To(Equal(int64(1)))

		got, err := s.Tasks().Get(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Kind.Type).To(Equal(models.TaskKindUnitBatch))
		Expect(got.Kind.UnitIDs).To(Equal([]int64{3, 1, 2}))
		Expect(got.Status).To(Equal(models.TaskStatusPending))
		Expect(got.ConcurrentLimit).To(Equal(5))
		Expect(got.StartedAt).To(BeNil())
		Expect(got.CompletedAt).To(BeNil())
	})

	It("should round trip a platform sync", func() {
		task := newTask("t1", models.PlatformSync(9, []int64{4}))
		Expect(s.Tasks().Create(ctx, task)).To(Succeed())

		got, err := s.Tasks().Get(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Kind.IsPlatformSync()).To(BeTrue())
		Expect(got.Kind.PlatformID).To(Equal(int64(9)))
		Expect(got.Kind.UnitIDs).To(Equal([]int64{4}))
	})

	It("should return ErrNotFound for unknown tasks", func() {
		_, err := s.Tasks().Get(ctx, "missing")
		Expect(err).To(Equal(store.ErrNotFound))
	})

	Describe("Update", func() {
		It("should advance the version", func() {
			task := newTask("t1", models.UnitBatch([]int64{1}))
			Expect(s.Tasks().Create(ctx, task)).To(Succeed())

			now := time.Now().UTC()
			task.Status = models.TaskStatusRunning
			task.StartedAt = &now
			task.CompletedCount = 1
			task.Progress = 100
			Expect(s.Tasks().Update(ctx, task)).To(Succeed())
			Expect(task.Version).To(Equal(int64(2)))

			got, err := s.Tasks().Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Version).To(Equal(int64(2)))
			Expect(got.Status).To(Equal(models.TaskStatusRunning))
			Expect(got.CompletedCount).To(Equal(1))
			Expect(got.Progress).To(Equal(100))
			Expect(got.StartedAt).NotTo(BeNil())
			Expect(*got.StartedAt).To(BeTemporally("~", now, time.Millisecond))
		})

		It("should reject a stale version", func() {
			task := newTask("t1", models.UnitBatch([]int64{1}))
			Expect(s.Tasks().Create(ctx, task)).To(Succeed())

			first, err := s.Tasks().Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			second, err := s.Tasks().Get(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())

			first.CompletedCount = 1
			Expect(s.Tasks().Update(ctx, first)).To(Succeed())

			second.FailedCount = 1
			err = s.Tasks().Update(ctx, second)
			Expect(err).To(Equal(store.ErrConflict))
			Expect(store.IsContention(err)).To(BeTrue())
		})

		It("should return ErrNotFound when the task is gone", func() {
			task := newTask("t1", models.UnitBatch([]int64{1}))
			err := s.Tasks().Update(ctx, task)
			Expect(err).To(Equal(store.ErrNotFound))
		})
	})

	Describe("List", func() {
		It("should filter by status", func() {
			a := newTask("a", models.UnitBatch([]int64{1}))
			b := newTask("b", models.UnitBatch([]int64{2}))
			Expect(s.Tasks().Create(ctx, a)).To(Succeed())
			Expect(s.Tasks().Create(ctx, b)).To(Succeed())

			b.Status = models.TaskStatusFailed
			Expect(s.Tasks().Update(ctx, b)).To(Succeed())

			all, err := s.Tasks().List(ctx, models.TaskFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))

			failed := models.TaskStatusFailed
			filtered, err := s.Tasks().List(ctx, models.TaskFilter{Status: &failed})
			Expect(err).NotTo(HaveOccurred())
			Expect(filtered).To(HaveLen(1))
			Expect(filtered[0].ID).To(Equal("b"))
		})
	})

	Describe("GetOrCreatePlatformSync", func() {
		It("should return the active sync instead of creating a second one", func() {
			first := newTask("first", models.PlatformSync(1, nil))
			got, created, err := s.Tasks().GetOrCreatePlatformSync(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(got.ID).To(Equal("first"))

			second := newTask("second", models.PlatformSync(1, nil))
			got, created, err = s.Tasks().GetOrCreatePlatformSync(ctx, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(got.ID).To(Equal("first"))

			other := newTask("other", models.PlatformSync(2, nil))
			_, created, err = s.Tasks().GetOrCreatePlatformSync(ctx, other)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
		})

		It("should create a new sync once the previous one finished", func() {
			first := newTask("first", models.PlatformSync(1, nil))
			_, _, err := s.Tasks().GetOrCreatePlatformSync(ctx, first)
			Expect(err).NotTo(HaveOccurred())

			first.Status = models.TaskStatusCompleted
			Expect(s.Tasks().Update(ctx, first)).To(Succeed())

			second := newTask("second", models.PlatformSync(1, nil))
			got, created, err := s.Tasks().GetOrCreatePlatformSync(ctx, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(got.ID).To(Equal("second"))
		})
	})

	It("should delete tasks", func() {
		task := newTask("t1", models.UnitBatch([]int64{1}))
		Expect(s.Tasks().Create(ctx, task)).To(Succeed())
		Expect(s.Tasks().Delete(ctx, "t1")).To(Succeed())
		_, err := s.Tasks().Get(ctx, "t1")
		Expect(err).To(Equal(store.ErrNotFound))
		Expect(s.Tasks().Delete(ctx, "t1")).To(Equal(store.ErrNotFound))
	})
})
