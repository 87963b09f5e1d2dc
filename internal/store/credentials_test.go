package store_test

import (
	"context"
	"database/sql"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
)

var _ = Describe("CredentialsStore", func() {
	var (
		ctx   context.Context
		s     *store.Store
		db    *sql.DB
		creds *models.Credentials
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		err = migrations.Run(ctx, db)
		Expect(err).NotTo(HaveOccurred())

		s = store.NewStore(db)

		creds = &models.Credentials{
			UnitID:   1,
			Username: "root",
			Password: "sealed-secret",
			Port:     2222,
			KeyPath:  "/keys/id_ed25519",
		}
	})

	AfterEach(func() {
		if db != nil {
			_ = db.Close()
		}
	})

	Describe("Save", func() {
		It("should save credentials successfully", func() {
			err := s.Credentials().Save(ctx, creds)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should default the port to 22", func() {
			creds.Port = 0
			Expect(s.Credentials().Save(ctx, creds)).To(Succeed())

			retrieved, err := s.Credentials().Get(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.Port).To(Equal(22))
		})

		It("should update credentials on second save (upsert)", func() {
			err := s.Credentials().Save(ctx, creds)
			Expect(err).NotTo(HaveOccurred())

			updated := &models.Credentials{
				UnitID:   1,
				Username: "admin",
				Password: "other",
				Port:     22,
			}
			err = s.Credentials().Save(ctx, updated)
			Expect(err).NotTo(HaveOccurred())

			retrieved, err := s.Credentials().Get(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.Username).To(Equal("admin"))
			Expect(retrieved.Password).To(Equal("other"))
			Expect(retrieved.KeyPath).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		It("should return ErrNotFound when no credentials exist", func() {
			_, err := s.Credentials().Get(ctx, 1)
			Expect(err).To(Equal(store.ErrNotFound))
		})

		It("should keep credentials of different units apart", func() {
			Expect(s.Credentials().Save(ctx, creds)).To(Succeed())
			other := &models.Credentials{UnitID: 2, Username: "svc", Password: "x"}
			Expect(s.Credentials().Save(ctx, other)).To(Succeed())

			first, err := s.Credentials().Get(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Username).To(Equal("root"))
			Expect(first.Port).To(Equal(2222))
			Expect(first.KeyPath).To(Equal("/keys/id_ed25519"))

			second, err := s.Credentials().Get(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Username).To(Equal("svc"))
		})

		It("should have timestamps set by database", func() {
			Expect(s.Credentials().Save(ctx, creds)).To(Succeed())

			retrieved, err := s.Credentials().Get(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.CreatedAt).NotTo(BeZero())
			Expect(retrieved.UpdatedAt).NotTo(BeZero())
		})
	})

	Describe("Delete", func() {
		It("should delete existing credentials", func() {
			Expect(s.Credentials().Save(ctx, creds)).To(Succeed())

			Expect(s.Credentials().Delete(ctx, 1)).To(Succeed())

			_, err := s.Credentials().Get(ctx, 1)
			Expect(err).To(Equal(store.ErrNotFound))
		})

		It("should not error when deleting non-existent credentials", func() {
			Expect(s.Credentials().Delete(ctx, 42)).To(Succeed())
		})
	})
})
