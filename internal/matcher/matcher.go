// Package matcher resolves platform virtual machines to local units.
package matcher

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// Tier is the strength of a match. Lower tiers win.
type Tier int

const (
	TierUUID Tier = iota + 1
	TierName
	TierIP
	TierSubstring
)

func (t Tier) String() string {
	switch t {
	case TierUUID:
		return "uuid"
	case TierName:
		return "name"
	case TierIP:
		return "ip"
	case TierSubstring:
		return "substring"
	default:
		return "unknown"
	}
}

type Match struct {
	VM   models.VMRecord
	Unit models.Unit
	Tier Tier
}

type tierFunc func(vm models.VMRecord, u models.Unit) bool

// MatchUnits pairs vms and units. Each tier is a global pass over every
// remaining pair before the next tier runs. A VM and a unit are each used
// at most once. VMs without a unit are ignored.
func MatchUnits(vms []models.VMRecord, units []models.Unit) ([]Match, []models.Unit) {
	sortedVMs := append([]models.VMRecord(nil), vms...)
	sort.SliceStable(sortedVMs, func(i, j int) bool {
		if sortedVMs[i].Name != sortedVMs[j].Name {
			return sortedVMs[i].Name < sortedVMs[j].Name
		}
		return sortedVMs[i].UUID < sortedVMs[j].UUID
	})
	sortedUnits := append([]models.Unit(nil), units...)
	sort.SliceStable(sortedUnits, func(i, j int) bool { return sortedUnits[i].ID < sortedUnits[j].ID })

	usedVM := make([]bool, len(sortedVMs))
	usedUnit := make([]bool, len(sortedUnits))
	log := zap.S().Named("matcher")

	tiers := []struct {
		tier Tier
		fn   tierFunc
	}{
		{TierUUID, uuidEqual},
		{TierName, nameEqual},
		{TierIP, ipEqual},
		{TierSubstring, nameContains},
	}

	var matches []Match
	for _, t := range tiers {
		for ui, u := range sortedUnits {
			if usedUnit[ui] {
				continue
			}
			for vi, vm := range sortedVMs {
				if usedVM[vi] || !t.fn(vm, u) {
					continue
				}
				usedVM[vi] = true
				usedUnit[ui] = true
				matches = append(matches, Match{VM: vm, Unit: u, Tier: t.tier})
				if t.tier == TierSubstring {
					log.Warnw("loose match", "unit_id", u.ID, "unit_name", u.Name, "vm", vm.Name)
				} else {
					log.Debugw("matched unit", "unit_id", u.ID, "vm", vm.Name, "tier", t.tier.String())
				}
				break
			}
		}
	}

	unmatched := make([]models.Unit, 0)
	for ui, u := range sortedUnits {
		if !usedUnit[ui] {
			unmatched = append(unmatched, u)
		}
	}
	return matches, unmatched
}

func uuidEqual(vm models.VMRecord, u models.Unit) bool {
	a, b := strings.TrimSpace(vm.UUID), strings.TrimSpace(u.HardwareUUID)
	return a != "" && strings.EqualFold(a, b)
}

func nameEqual(vm models.VMRecord, u models.Unit) bool {
	a, b := strings.TrimSpace(vm.Name), strings.TrimSpace(u.Name)
	return a != "" && strings.EqualFold(a, b)
}

func ipEqual(vm models.VMRecord, u models.Unit) bool {
	addr := strings.TrimSpace(u.Address)
	if addr == "" {
		return false
	}
	for _, ip := range vm.IPAddresses {
		if strings.TrimSpace(ip) == addr {
			return true
		}
	}
	return false
}

func nameContains(vm models.VMRecord, u models.Unit) bool {
	a := strings.ToLower(strings.TrimSpace(vm.Name))
	b := strings.ToLower(strings.TrimSpace(u.Name))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
