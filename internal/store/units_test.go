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

var _ = Describe("UnitStore", func() {
	var (
		ctx  context.Context
		s    *store.Store
		db   *sql.DB
		unit *models.Unit
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())

		s = store.NewStore(db)

		unit = &models.Unit{Name: "web01", Address: "10.0.0.1", Kind: models.UnitKindLinux}
		Expect(s.Units().Create(ctx, unit)).To(Succeed())
	})

	AfterEach(func() {
		_ = db.Close()
	})

	It("should create units with defaults", func() {
		Expect(unit.ID).To(BeNumerically(">", 0))

		got, err := s.Units().Get(ctx, unit.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("web01"))
		Expect(got.Kind).To(Equal(models.UnitKindLinux))
		Expect(got.Source).To(Equal(models.UnitSourceImport))
		Expect(got.CollectionStatus).To(Equal(models.CollectionStatusNotCollected))
		Expect(got.LastCollectedAt).To(BeNil())
		Expect(got.SourcePlatformID).To(BeNil())
	})

	It("should find units by address", func() {
		got, err := s.Units().GetByAddress(ctx, "10.0.0.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(unit.ID))

		_, err = s.Units().GetByAddress(ctx, "10.0.0.99")
		Expect(err).To(Equal(store.ErrNotFound))
	})

	It("should list selected units ordered by id", func() {
		other := &models.Unit{Name: "db01", Address: "10.0.0.2", Kind: models.UnitKindLinux}
		Expect(s.Units().Create(ctx, other)).To(Succeed())

		units, err := s.Units().List(ctx, []int64{other.ID, unit.ID, 999})
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(2))
		Expect(units[0].ID).To(Equal(unit.ID))
		Expect(units[1].ID).To(Equal(other.ID))

		empty, err := s.Units().List(ctx, []int64{})
		Expect(err).NotTo(HaveOccurred())
		Expect(empty).To(BeEmpty())
	})

	It("should set the status and timestamp", func() {
		now := time.Now().UTC()
		Expect(s.Units().SetStatus(ctx, unit.ID, models.CollectionStatusCollecting, &now)).To(Succeed())

		got, err := s.Units().Get(ctx, unit.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CollectionStatus).To(Equal(models.CollectionStatusCollecting))
		Expect(got.LastCollectedAt).NotTo(BeNil())

		Expect(s.Units().SetStatus(ctx, 999, models.CollectionStatusFailed, nil)).To(Equal(store.ErrNotFound))
	})

	It("should record an outcome with its detail", func() {
		detail := &models.CollectionDetail{
			TaskID:       "t1",
			Status:       models.DetailStatusFailed,
			Method:       "linux",
			ErrorMessage: "boom",
			CollectedAt:  time.Now().UTC(),
		}
		Expect(s.Units().RecordOutcome(ctx, unit.ID, models.CollectionStatusFailed, detail)).To(Succeed())

		got, err := s.Units().Get(ctx, unit.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CollectionStatus).To(Equal(models.CollectionStatusFailed))

		latest, err := s.Details().Latest(ctx, unit.ID, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(latest.Status).To(Equal(models.DetailStatusFailed))
		Expect(latest.ErrorMessage).To(Equal("boom"))
	})

	Describe("ApplyFacts", func() {
		var facts *models.NormalizedFacts

		BeforeEach(func() {
			facts = &models.NormalizedFacts{
				Facts: models.Facts{
					Hostname:    "web01.example.com",
					OSType:      "Ubuntu",
					OSVersion:   "22.04",
					CPUCores:    4,
					MemoryTotal: 15.5,
					IsPhysical:  true,
				},
				MAC: "00:11:22:33:44:55",
				Disks: []models.Disk{
					{Device: "sda", Size: 100, Index: 0},
					{Device: "sdb", Size: 50, Index: 1},
				},
				Mounts: []models.Mount{{Device: "/dev/sda1", MountPoint: "/", FSType: "ext4", SizeTotal: 99, SizeAvailable: 40, SizeAvailableRatio: 0.4}},
				NICs:   []models.NIC{{Name: "eth0", MAC: "00:11:22:33:44:55", IsDefault: true, IPv4Address: "10.0.0.1"}},
			}
			facts.DiskTotalSize = 150
		})

		It("should write facts, sub-collections and the detail", func() {
			detail := &models.CollectionDetail{TaskID: "t1", Status: models.DetailStatusSuccess, Method: "linux",
				CollectedAt: time.Now().UTC(), RawFacts: []byte(`{"ansible_hostname":"web01"}`)}
			Expect(s.Units().ApplyFacts(ctx, unit.ID, facts, models.CollectionStatusCompleted, detail)).To(Succeed())

			got, err := s.Units().Get(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CollectionStatus).To(Equal(models.CollectionStatusCompleted))
			Expect(got.Address).To(Equal("10.0.0.1"))
			Expect(got.MAC).To(Equal("00:11:22:33:44:55"))
			Expect(got.Facts.Hostname).To(Equal("web01.example.com"))
			Expect(got.Facts.DiskCount).To(Equal(2))
			Expect(got.Facts.DiskTotalSize).To(Equal(150.0))
			Expect(got.Facts.NetworkCount).To(Equal(1))

			disks, err := s.Units().Disks(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(disks).To(HaveLen(2))
			mounts, err := s.Units().Mounts(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(mounts).To(HaveLen(1))
			nics, err := s.Units().NICs(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(nics).To(HaveLen(1))
			Expect(nics[0].IsDefault).To(BeTrue())

			latest, err := s.Details().Latest(ctx, unit.ID, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.Status).To(Equal(models.DetailStatusSuccess))
			Expect(string(latest.RawFacts)).To(Equal(`{"ansible_hostname":"web01"}`))
		})

		It("should replace sub-collections instead of merging", func() {
			detail := &models.CollectionDetail{Status: models.DetailStatusSuccess, CollectedAt: time.Now().UTC()}
			Expect(s.Units().ApplyFacts(ctx, unit.ID, facts, models.CollectionStatusCompleted, detail)).To(Succeed())

			facts.Disks = []models.Disk{{Device: "nvme0n1", Size: 500}}
			facts.NICs = nil
			detail = &models.CollectionDetail{Status: models.DetailStatusSuccess, CollectedAt: time.Now().UTC()}
			Expect(s.Units().ApplyFacts(ctx, unit.ID, facts, models.CollectionStatusCompleted, detail)).To(Succeed())

			disks, err := s.Units().Disks(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(disks).To(HaveLen(1))
			Expect(disks[0].Device).To(Equal("nvme0n1"))

			nics, err := s.Units().NICs(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(nics).To(BeEmpty())

			details, err := s.Details().ListByUnit(ctx, unit.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(details).To(HaveLen(2))
		})

		It("should leave nothing behind when the unit does not exist", func() {
			detail := &models.CollectionDetail{Status: models.DetailStatusSuccess, CollectedAt: time.Now().UTC()}
			err := s.Units().ApplyFacts(ctx, 999, facts, models.CollectionStatusCompleted, detail)
			Expect(err).To(Equal(store.ErrNotFound))

			disks, err := s.Units().Disks(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(disks).To(BeEmpty())
			details, err := s.Details().ListByUnit(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(details).To(BeEmpty())
		})
	})
})
