package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

// ImportFile is the document produced by the discovery scanner.
type ImportFile struct {
	Platforms []ImportPlatform `yaml:"platforms"`
	Units     []ImportUnit     `yaml:"units"`
}

type ImportPlatform struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Region   string `yaml:"region"`
	Insecure *bool  `yaml:"insecure"`
}

type ImportUnit struct {
	Name        string             `yaml:"name"`
	Address     string             `yaml:"address"`
	MAC         string             `yaml:"mac"`
	Kind        string             `yaml:"kind"`
	Platform    string             `yaml:"platform"`
	Credentials *ImportCredentials `yaml:"credentials"`
}

type ImportCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
	KeyPath  string `yaml:"key_path"`
}

type ImportReport struct {
	PlatformsCreated int
	PlatformsUpdated int
	UnitsCreated     int
	UnitsUpdated     int
}

// Importer loads scanner output into the store. Platforms are keyed by name
// and units by address.
type Importer struct {
	store  *store.Store
	creds  *CredentialService
	sealer *sealer.Sealer
}

func NewImporter(st *store.Store, s *sealer.Sealer) *Importer {
	return &Importer{
		store:  st,
		creds:  NewCredentialService(st.Credentials(), s),
		sealer: s,
	}
}

// Import decodes r and upserts every entry. Invalid entries are skipped and
// reported together in the returned error.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportReport, error) {
	var doc ImportFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decoding import file: %v", ErrInvalidRequest, err)
	}

	report := &ImportReport{}
	var errs []error

	platforms := make(map[string]int64, len(doc.Platforms))
	for _, p := range doc.Platforms {
		id, created, err := i.importPlatform(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("platform %q: %w", p.Name, err))
			continue
		}
		platforms[p.Name] = id
		if created {
			report.PlatformsCreated++
		} else {
			report.PlatformsUpdated++
		}
	}

	seen := make(map[string]struct{}, len(doc.Units))
	for _, u := range doc.Units {
		addr := strings.TrimSpace(u.Address)
		if _, dup := seen[addr]; dup {
			zap.S().Debugw("skipping duplicate unit", "address", addr)
			continue
		}
		seen[addr] = struct{}{}

		created, err := i.importUnit(ctx, u, platforms)
		if err != nil {
			errs = append(errs, fmt.Errorf("unit %q: %w", u.Address, err))
			continue
		}
		if created {
			report.UnitsCreated++
		} else {
			report.UnitsUpdated++
		}
	}

	zap.S().Infow("import finished",
		"platforms_created", report.PlatformsCreated, "platforms_updated", report.PlatformsUpdated,
		"units_created", report.UnitsCreated, "units_updated", report.UnitsUpdated, "errors", len(errs))
	return report, utilerrors.NewAggregate(errs)
}

func (i *Importer) importPlatform(ctx context.Context, in ImportPlatform) (int64, bool, error) {
	if in.Name == "" || in.Host == "" {
		return 0, false, fmt.Errorf("%w: name and host are required", ErrInvalidRequest)
	}
	typ := models.PlatformType(strings.ToLower(in.Type))
	if typ == "" {
		typ = models.PlatformTypeVMware
	}
	if typ != models.PlatformTypeVMware {
		return 0, false, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, in.Type)
	}

	sealed, err := i.sealer.Seal(in.Password)
	if err != nil {
		return 0, false, fmt.Errorf("sealing password: %w", err)
	}

	p := &models.Platform{
		Name:     in.Name,
		Type:     typ,
		Host:     in.Host,
		Port:     in.Port,
		Username: in.Username,
		Password: sealed,
		Region:   in.Region,
		Insecure: true,
	}
	if in.Insecure != nil {
		p.Insecure = *in.Insecure
	}

	existing, err := i.store.Platforms().GetByName(ctx, in.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := i.store.Platforms().Create(ctx, p); err != nil {
			return 0, false, err
		}
		return p.ID, true, nil
	case err != nil:
		return 0, false, err
	}

	p.ID = existing.ID
	if p.Port == 0 {
		p.Port = existing.Port
	}
	if err := i.store.Platforms().Update(ctx, p); err != nil {
		return 0, false, err
	}
	return p.ID, false, nil
}

func (i *Importer) importUnit(ctx context.Context, in ImportUnit, platforms map[string]int64) (bool, error) {
	addr := strings.TrimSpace(in.Address)
	if addr == "" {
		return false, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}
	kind, err := models.ParseUnitKind(in.Kind)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var platformID *int64
	if in.Platform != "" {
		id, ok := platforms[in.Platform]
		if !ok {
			p, err := i.store.Platforms().GetByName(ctx, in.Platform)
			if err != nil {
				return false, fmt.Errorf("platform %q: %w", in.Platform, err)
			}
			id = p.ID
		}
		platformID = &id
	}

	name := in.Name
	if name == "" {
		name = addr
	}

	created := false
	unit, err := i.store.Units().GetByAddress(ctx, addr)
	switch {
	case errors.Is(err, store.ErrNotFound):
		unit = &models.Unit{
			Name:             name,
			Address:          addr,
			MAC:              in.MAC,
			Kind:             kind,
			Source:           models.UnitSourceImport,
			SourcePlatformID: platformID,
		}
		if err := i.store.Units().Create(ctx, unit); err != nil {
			return false, err
		}
		created = true
	case err != nil:
		return false, err
	default:
		unit.Name = name
		unit.Kind = kind
		if in.MAC != "" {
			unit.MAC = in.MAC
		}
		if platformID != nil {
			unit.SourcePlatformID = platformID
		}
		if err := i.store.Units().UpdateIdentity(ctx, unit); err != nil {
			return false, err
		}
	}

	if in.Credentials != nil {
		err := i.creds.Save(ctx, &models.Credentials{
			UnitID:   unit.ID,
			Username: in.Credentials.Username,
			Password: in.Credentials.Password,
			Port:     in.Credentials.Port,
			KeyPath:  in.Credentials.KeyPath,
		})
		if err != nil {
			return created, fmt.Errorf("saving credentials: %w", err)
		}
	}
	return created, nil
}
