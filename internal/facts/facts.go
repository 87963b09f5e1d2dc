// Package facts normalizes raw fact blobs produced by the collectors into
// the canonical unit record. Sizes are reported in GiB with two decimals.
package facts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kubev2v/inventory-collector/internal/models"
)

const gib = 1024 * 1024 * 1024

// ParseError is returned when a raw blob cannot be decoded.
type ParseError struct {
	Kind models.UnitKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s facts: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var ErrEmptyFacts = errors.New("collection returned no data")

// Normalize decodes raw with the decoder of kind.
func Normalize(raw []byte, kind models.UnitKind) (*models.NormalizedFacts, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &ParseError{Kind: kind, Err: ErrEmptyFacts}
	}

	var (
		out *models.NormalizedFacts
		err error
	)
	switch kind {
	case models.UnitKindLinux, models.UnitKindWindows:
		out, err = normalizeSetup(raw, kind)
	case models.UnitKindVM:
		out, err = normalizeVirtualMachine(raw)
	case models.UnitKindHypervisor:
		out, err = normalizeHypervisor(raw)
	case models.UnitKindLocal:
		out, err = normalizeLocal(raw)
	default:
		err = fmt.Errorf("no decoder for unit kind %q", kind)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ParseError{Kind: kind, Err: err}
	}

	out.DiskCount = len(out.Disks)
	out.NetworkCount = len(out.NICs)
	if out.DiskTotalSize == 0 {
		var total float64
		for _, d := range out.Disks {
			total += d.Size
		}
		out.DiskTotalSize = round2(total)
	}
	return out, nil
}

// BytesToGiB converts a byte count to GiB rounded to two decimals.
func BytesToGiB(b float64) float64 {
	return round2(b / gib)
}

// MiBToGiB converts a MiB count to GiB rounded to two decimals.
func MiBToGiB(mb float64) float64 {
	return round2(mb / 1024)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ratio(available, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(available / total)
}

// number decodes JSON numbers that some tools emit as strings.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// values like "NA" are treated as unknown
		*n = 0
		return nil
	}
	*n = number(v)
	return nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	return nil
}

func isVirtualVendor(s string) bool {
	s = strings.ToLower(s)
	for _, v := range []string{"vmware", "openstack", "qemu", "kvm", "virtualbox", "xen", "hyper-v", "virtual machine"} {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func bitsFromArch(arch string) string {
	a := strings.ToLower(arch)
	switch {
	case strings.Contains(a, "64"):
		return "64"
	case a == "":
		return ""
	default:
		return "32"
	}
}
