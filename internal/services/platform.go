package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kubev2v/inventory-collector/internal/collector/vsphere"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

// PlatformSource is an open session on a virtualization platform.
type PlatformSource interface {
	ListVMs(ctx context.Context) ([]models.VMRecord, error)
	ListHypervisors(ctx context.Context) ([]models.HypervisorRecord, error)
	Close(ctx context.Context) error
}

// PlatformOpener opens a session on a stored platform.
type PlatformOpener interface {
	Open(ctx context.Context, p *models.Platform) (PlatformSource, error)
}

// VSphereOpener opens vCenter sessions. Platform passwords are sealed at
// rest and opened here.
type VSphereOpener struct {
	sealer  *sealer.Sealer
	timeout time.Duration
}

func NewVSphereOpener(s *sealer.Sealer, timeout time.Duration) *VSphereOpener {
	return &VSphereOpener{sealer: s, timeout: timeout}
}

func (o *VSphereOpener) Open(ctx context.Context, p *models.Platform) (PlatformSource, error) {
	if p.Type != models.PlatformTypeVMware {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p.Type)
	}
	password, err := o.sealer.Open(p.Password)
	if err != nil {
		return nil, fmt.Errorf("opening password of platform %s: %w", p.Name, err)
	}
	cfg := vsphere.ConfigFromPlatform(p, password)
	cfg.Timeout = o.timeout
	client, err := vsphere.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}
