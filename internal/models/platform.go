package models

import "time"

type PlatformType string

const (
	PlatformTypeVMware PlatformType = "vmware"
)

// Platform is a virtualization platform (vCenter, ...).
type Platform struct {
	ID        int64
	Name      string
	Type      PlatformType
	Host      string
	Port      int
	Username  string
	Password  string
	Region    string
	Insecure  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VMRecord is a virtual machine as observed on a platform. Raw holds the
// platform fact blob handed to the fact parser.
type VMRecord struct {
	Name        string
	UUID        string
	IPAddresses []string
	Raw         []byte
}

// HypervisorRecord is a hypervisor host as observed on a platform.
type HypervisorRecord struct {
	Name    string
	Address string
	UUID    string
	Raw     []byte
}

// SyncStats counts the outcome of a hypervisor sync.
type SyncStats struct {
	Synced      int
	Updated     int
	Failed      int
	FailedItems []string
}
