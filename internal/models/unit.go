package models

import (
	"fmt"
	"strings"
	"time"
)

// UnitKind selects the collector and the fact decoder used for a unit.
type UnitKind string

const (
	UnitKindLinux      UnitKind = "linux"
	UnitKindWindows    UnitKind = "windows"
	UnitKindHypervisor UnitKind = "hypervisor"
	UnitKindLocal      UnitKind = "local"
	UnitKindVM         UnitKind = "vm"
)

func ParseUnitKind(s string) (UnitKind, error) {
	switch UnitKind(strings.ToLower(s)) {
	case UnitKindLinux, UnitKindWindows, UnitKindHypervisor, UnitKindLocal, UnitKindVM:
		return UnitKind(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("invalid unit kind: %s", s)
	}
}

// CollectionStatus is the per-unit collection state.
type CollectionStatus string

const (
	CollectionStatusNotCollected CollectionStatus = "not_collected"
	CollectionStatusCollecting   CollectionStatus = "collecting"
	CollectionStatusCompleted    CollectionStatus = "completed"
	CollectionStatusFailed       CollectionStatus = "failed"
	// CollectionStatusCollected marks units known out of band (hypervisors
	// fed by platform sync). It is terminal.
	CollectionStatusCollected CollectionStatus = "collected"
)

func (s CollectionStatus) IsTerminal() bool {
	switch s {
	case CollectionStatusCompleted, CollectionStatusFailed, CollectionStatusCollected:
		return true
	default:
		return false
	}
}

// UnitSource tells where a unit record came from.
type UnitSource string

const (
	UnitSourceImport   UnitSource = "import"
	UnitSourcePlatform UnitSource = "platform"
	UnitSourceManual   UnitSource = "manual"
)

// Unit is a collectible host.
type Unit struct {
	ID               int64
	Name             string
	Address          string
	MAC              string
	HardwareUUID     string
	Kind             UnitKind
	Source           UnitSource
	SourcePlatformID *int64
	CollectionStatus CollectionStatus
	LastCollectedAt  *time.Time
	Facts            Facts
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Facts are the canonical scalar facts stored on a unit. Sizes are GiB.
type Facts struct {
	Hostname          string
	Vendor            string
	Model             string
	OSType            string
	OSVersion         string
	OSKernel          string
	OSBits            string
	BootType          string
	CPUInfo           string
	CPUCores          int
	MemoryTotal       float64
	MemoryFree        float64
	MemoryInfo        string
	DiskCount         int
	DiskTotalSize     float64
	NetworkCount      int
	VTPlatform        string
	VTPlatformVersion string
	DeviceType        string
	IsPhysical        bool
}

type Disk struct {
	Device string
	Size   float64
	Vendor string
	Model  string
	Index  int
}

type Mount struct {
	Device             string
	MountPoint         string
	FSType             string
	SizeTotal          float64
	SizeAvailable      float64
	SizeAvailableRatio float64
}

type NIC struct {
	Name          string
	MAC           string
	Active        bool
	MTU           int
	Speed         int
	IPv4Address   string
	IPv4Netmask   string
	IPv4Network   string
	IPv4Broadcast string
	IPv6Address   string
	Gateway       string
	IsDefault     bool
}

// NormalizedFacts is the output of the fact parser for a single unit.
type NormalizedFacts struct {
	Facts
	Address      string
	MAC          string
	HardwareUUID string
	Disks        []Disk
	Mounts       []Mount
	NICs         []NIC
}
