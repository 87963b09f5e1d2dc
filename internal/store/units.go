package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// UnitStore persists collectible units and their fact sub-collections.
type UnitStore struct {
	db      *sql.DB
	details *DetailStore
}

func NewUnitStore(db *sql.DB) *UnitStore {
	return &UnitStore{db: db, details: NewDetailStore(db)}
}

// Create inserts unit and sets its ID.
func (s *UnitStore) Create(ctx context.Context, unit *models.Unit) error {
	status := unit.CollectionStatus
	if status == "" {
		status = models.CollectionStatusNotCollected
	}
	source := unit.Source
	if source == "" {
		source = models.UnitSourceImport
	}

	row := s.db.QueryRowContext(ctx, queryInsertUnit,
		unit.Name, unit.Address, unit.MAC, unit.HardwareUUID, string(unit.Kind), string(source),
		int64Arg(unit.SourcePlatformID), string(status),
	)
	if err := row.Scan(&unit.ID); err != nil {
		return fmt.Errorf("inserting unit %s: %w", unit.Address, err)
	}
	unit.CollectionStatus = status
	unit.Source = source
	return nil
}

func (s *UnitStore) Get(ctx context.Context, id int64) (*models.Unit, error) {
	return scanUnit(s.db.QueryRowContext(ctx, queryGetUnit, id))
}

func (s *UnitStore) GetByAddress(ctx context.Context, address string) (*models.Unit, error) {
	return scanUnit(s.db.QueryRowContext(ctx, queryGetUnitByAddress, address))
}

// List returns the units with the given ids ordered by id. Unknown ids are
// skipped. A nil slice lists every unit.
func (s *UnitStore) List(ctx context.Context, ids []int64) ([]models.Unit, error) {
	query := queryListUnits
	var args []any
	if ids != nil {
		if len(ids) == 0 {
			return []models.Unit{}, nil
		}
		var in string
		in, args = inClause(ids)
		query += " WHERE id IN " + in
	}
	query += " ORDER BY id"
	return s.list(ctx, query, args...)
}

func (s *UnitStore) ListByPlatform(ctx context.Context, platformID int64) ([]models.Unit, error) {
	return s.list(ctx, queryListUnits+" WHERE source_platform_id = ? ORDER BY id", platformID)
}

func (s *UnitStore) list(ctx context.Context, query string, args ...any) ([]models.Unit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	units := []models.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

// UpdateIdentity updates the natural keys and provenance of a unit.
func (s *UnitStore) UpdateIdentity(ctx context.Context, unit *models.Unit) error {
	res, err := s.db.ExecContext(ctx, queryUpdateUnitIdentity,
		unit.Name, unit.MAC, unit.HardwareUUID, string(unit.Kind), string(unit.Source),
		int64Arg(unit.SourcePlatformID), unit.ID,
	)
	if err != nil {
		return fmt.Errorf("updating unit %d: %w", unit.ID, err)
	}
	return expectOne(res)
}

// SetStatus changes the collection status. When at is set the last collected
// timestamp is refreshed too.
func (s *UnitStore) SetStatus(ctx context.Context, id int64, status models.CollectionStatus, at *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if at != nil {
		res, err = s.db.ExecContext(ctx, queryUpdateUnitStatusAt, string(status), *at, id)
	} else {
		res, err = s.db.ExecContext(ctx, queryUpdateUnitStatus, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("setting status of unit %d: %w", id, err)
	}
	return expectOne(res)
}

// RecordOutcome sets the unit status and appends detail in one transaction.
func (s *UnitStore) RecordOutcome(ctx context.Context, id int64, status models.CollectionStatus, detail *models.CollectionDetail) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, queryUpdateUnitStatusAt, string(status), detail.CollectedAt, id)
		if err != nil {
			return fmt.Errorf("setting status of unit %d: %w", id, err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		detail.UnitID = id
		return s.details.append(ctx, tx, detail)
	})
}

// ApplyFacts writes normalized facts onto the unit, replaces its disks, mounts
// and NICs, sets its status and appends detail. Everything happens in one
// transaction.
func (s *UnitStore) ApplyFacts(ctx context.Context, id int64, facts *models.NormalizedFacts, status models.CollectionStatus, detail *models.CollectionDetail) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		f := facts.Facts
		res, err := tx.ExecContext(ctx, queryUpdateUnitFacts,
			facts.Address, facts.MAC, facts.HardwareUUID,
			f.Hostname, f.Vendor, f.Model, f.OSType, f.OSVersion, f.OSKernel, f.OSBits, f.BootType,
			f.CPUInfo, f.CPUCores, f.MemoryTotal, f.MemoryFree, f.MemoryInfo,
			len(facts.Disks), f.DiskTotalSize, len(facts.NICs),
			f.VTPlatform, f.VTPlatformVersion, f.DeviceType, f.IsPhysical,
			string(status), detail.CollectedAt, id,
		)
		if err != nil {
			return fmt.Errorf("writing facts of unit %d: %w", id, err)
		}
		if err := expectOne(res); err != nil {
			return err
		}

		if err := replaceDisks(ctx, tx, id, facts.Disks); err != nil {
			return err
		}
		if err := replaceMounts(ctx, tx, id, facts.Mounts); err != nil {
			return err
		}
		if err := replaceNICs(ctx, tx, id, facts.NICs); err != nil {
			return err
		}

		detail.UnitID = id
		return s.details.append(ctx, tx, detail)
	})
}

func replaceDisks(ctx context.Context, tx *sql.Tx, id int64, disks []models.Disk) error {
	if _, err := tx.ExecContext(ctx, queryDeleteDisks, id); err != nil {
		return fmt.Errorf("deleting disks of unit %d: %w", id, err)
	}
	for _, d := range disks {
		if _, err := tx.ExecContext(ctx, queryInsertDisk, id, d.Device, d.Size, d.Vendor, d.Model, d.Index); err != nil {
			return fmt.Errorf("inserting disk %s of unit %d: %w", d.Device, id, err)
		}
	}
	return nil
}

func replaceMounts(ctx context.Context, tx *sql.Tx, id int64, mounts []models.Mount) error {
	if _, err := tx.ExecContext(ctx, queryDeleteMounts, id); err != nil {
		return fmt.Errorf("deleting mounts of unit %d: %w", id, err)
	}
	for _, m := range mounts {
		if _, err := tx.ExecContext(ctx, queryInsertMount,
			id, m.Device, m.MountPoint, m.FSType, m.SizeTotal, m.SizeAvailable, m.SizeAvailableRatio,
		); err != nil {
			return fmt.Errorf("inserting mount %s of unit %d: %w", m.MountPoint, id, err)
		}
	}
	return nil
}

func replaceNICs(ctx context.Context, tx *sql.Tx, id int64, nics []models.NIC) error {
	if _, err := tx.ExecContext(ctx, queryDeleteNICs, id); err != nil {
		return fmt.Errorf("deleting nics of unit %d: %w", id, err)
	}
	for _, n := range nics {
		if _, err := tx.ExecContext(ctx, queryInsertNIC,
			id, n.Name, n.MAC, n.Active, n.MTU, n.Speed, n.IPv4Address, n.IPv4Netmask, n.IPv4Network,
			n.IPv4Broadcast, n.IPv6Address, n.Gateway, n.IsDefault,
		); err != nil {
			return fmt.Errorf("inserting nic %s of unit %d: %w", n.Name, id, err)
		}
	}
	return nil
}

func (s *UnitStore) Disks(ctx context.Context, id int64) ([]models.Disk, error) {
	rows, err := s.db.QueryContext(ctx, queryListDisks, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	disks := []models.Disk{}
	for rows.Next() {
		var d models.Disk
		if err := rows.Scan(&d.Device, &d.Size, &d.Vendor, &d.Model, &d.Index); err != nil {
			return nil, err
		}
		disks = append(disks, d)
	}
	return disks, rows.Err()
}

func (s *UnitStore) Mounts(ctx context.Context, id int64) ([]models.Mount, error) {
	rows, err := s.db.QueryContext(ctx, queryListMounts, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	mounts := []models.Mount{}
	for rows.Next() {
		var m models.Mount
		if err := rows.Scan(&m.Device, &m.MountPoint, &m.FSType, &m.SizeTotal, &m.SizeAvailable, &m.SizeAvailableRatio); err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, rows.Err()
}

func (s *UnitStore) NICs(ctx context.Context, id int64) ([]models.NIC, error) {
	rows, err := s.db.QueryContext(ctx, queryListNICs, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	nics := []models.NIC{}
	for rows.Next() {
		var n models.NIC
		if err := rows.Scan(&n.Name, &n.MAC, &n.Active, &n.MTU, &n.Speed, &n.IPv4Address, &n.IPv4Netmask,
			&n.IPv4Network, &n.IPv4Broadcast, &n.IPv6Address, &n.Gateway, &n.IsDefault); err != nil {
			return nil, err
		}
		nics = append(nics, n)
	}
	return nics, rows.Err()
}

func scanUnit(row rowScanner) (*models.Unit, error) {
	var (
		u             models.Unit
		kind          string
		source        string
		status        string
		platformID    sql.NullInt64
		lastCollected sql.NullTime
	)
	f := &u.Facts
	err := row.Scan(&u.ID, &u.Name, &u.Address, &u.MAC, &u.HardwareUUID, &kind, &source, &platformID, &status,
		&lastCollected, &f.Hostname, &f.Vendor, &f.Model, &f.OSType, &f.OSVersion, &f.OSKernel, &f.OSBits,
		&f.BootType, &f.CPUInfo, &f.CPUCores, &f.MemoryTotal, &f.MemoryFree, &f.MemoryInfo, &f.DiskCount,
		&f.DiskTotalSize, &f.NetworkCount, &f.VTPlatform, &f.VTPlatformVersion, &f.DeviceType, &f.IsPhysical,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Kind = models.UnitKind(kind)
	u.Source = models.UnitSource(source)
	u.CollectionStatus = models.CollectionStatus(status)
	u.SourcePlatformID = int64Ptr(platformID)
	u.LastCollectedAt = timePtr(lastCollected)
	return &u, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
