package services_test

import (
	"context"
	"database/sql"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/internal/store/migrations"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

const importDoc = `
platforms:
  - name: vcenter-lab
    type: vmware
    host: vc.lab.example.com
    username: administrator@vsphere.local
    password: vc-secret
    insecure: false
units:
  - name: web-01
    address: 10.0.0.11
    kind: linux
    credentials:
      username: root
      password: hunter2
  - name: web-01-dup
    address: 10.0.0.11
    kind: linux
  - name: ad-01
    address: 10.0.0.20
    kind: Windows
    credentials:
      username: Administrator
      password: P@ssw0rd
      port: 5986
  - name: app-vm
    address: 10.0.2.5
    kind: vm
    platform: vcenter-lab
`

var _ = Describe("Importer", func() {
	var (
		ctx      context.Context
		db       *sql.DB
		st       *store.Store
		seal     *sealer.Sealer
		importer *services.Importer
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())
		st = store.NewStore(db)

		seal, err = sealer.Generate()
		Expect(err).NotTo(HaveOccurred())
		importer = services.NewImporter(st, seal)
	})

	AfterEach(func() {
		_ = db.Close()
	})

	It("should import platforms, units and credentials", func() {
		report, err := importer.Import(ctx, strings.NewReader(importDoc))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.PlatformsCreated).To(Equal(1))
		Expect(report.UnitsCreated).To(Equal(3))

		p, err := st.Platforms().GetByName(ctx, "vcenter-lab")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Insecure).To(BeFalse())
		Expect(p.Port).To(Equal(443))
		Expect(p.Password).NotTo(Equal("vc-secret"))
		plain, err := seal.Open(p.Password)
		Expect(err).NotTo(HaveOccurred())
		Expect(plain).To(Equal("vc-secret"))

		web, err := st.Units().GetByAddress(ctx, "10.0.0.11")
		Expect(err).NotTo(HaveOccurred())
		Expect(web.Name).To(Equal("web-01"))
		Expect(web.Source).To(Equal(models.UnitSourceImport))
		Expect(web.CollectionStatus).To(Equal(models.CollectionStatusNotCollected))

		stored, err := st.Credentials().Get(ctx, web.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Password).NotTo(Equal("hunter2"))

		c, err := services.NewCredentialService(st.Credentials(), seal).Lookup(ctx, web.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Username).To(Equal("root"))
		Expect(c.Password).To(Equal("hunter2"))

		ad, err := st.Units().GetByAddress(ctx, "10.0.0.20")
		Expect(err).NotTo(HaveOccurred())
		Expect(ad.Kind).To(Equal(models.UnitKindWindows))
		adCreds, err := st.Credentials().Get(ctx, ad.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(adCreds.Port).To(Equal(5986))

		vm, err := st.Units().GetByAddress(ctx, "10.0.2.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(vm.SourcePlatformID).To(HaveValue(Equal(p.ID)))
	})

	It("should update existing records on a second import", func() {
		_, err := importer.Import(ctx, strings.NewReader(importDoc))
		Expect(err).NotTo(HaveOccurred())

		report, err := importer.Import(ctx, strings.NewReader(importDoc))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.PlatformsCreated).To(BeZero())
		Expect(report.PlatformsUpdated).To(Equal(1))
		Expect(report.UnitsCreated).To(BeZero())
		Expect(report.UnitsUpdated).To(Equal(3))

		units, err := st.Units().List(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(units).To(HaveLen(3))
	})

	It("should import the valid entries and report the others", func() {
		doc := `
units:
  - name: ok
    address: 10.0.0.1
    kind: linux
  - name: bad-kind
    address: 10.0.0.2
    kind: mainframe
  - name: no-address
    kind: linux
  - name: orphan
    address: 10.0.0.3
    kind: vm
    platform: missing
`
		report, err := importer.Import(ctx, strings.NewReader(doc))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalid unit kind: mainframe"))
		Expect(err.Error()).To(ContainSubstring("address is required"))
		Expect(err.Error()).To(ContainSubstring(`platform "missing"`))
		Expect(report.UnitsCreated).To(Equal(1))
	})

	It("should reject a document that is not yaml", func() {
		_, err := importer.Import(ctx, strings.NewReader("units: [unterminated"))
		Expect(err).To(MatchError(services.ErrInvalidRequest))
	})

	It("should accept an empty document", func() {
		report, err := importer.Import(ctx, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(*report).To(BeZero())
	})
})
