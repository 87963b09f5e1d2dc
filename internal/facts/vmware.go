package facts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// VirtualMachine is the fact blob a platform client produces for a VM.
type VirtualMachine struct {
	Name        string       `json:"name"`
	UUID        string       `json:"uuid"`
	GuestID     string       `json:"guest_id"`
	GuestName   string       `json:"guest_full_name"`
	HostName    string       `json:"host_name"`
	Firmware    string       `json:"firmware"`
	NumCPU      int          `json:"num_cpu"`
	MemoryMB    int64        `json:"memory_mb"`
	PowerState  string       `json:"power_state"`
	IPAddress   string       `json:"ip_address"`
	ToolsStatus string       `json:"tools_status"`
	Version     string       `json:"hw_version"`
	Disks       []VMDisk     `json:"disks"`
	NICs        []VMNIC      `json:"nics"`
	Volumes     []GuestMount `json:"guest_disks"`
}

type VMDisk struct {
	Label    string `json:"label"`
	Capacity int64  `json:"capacity_bytes"`
	Backing  string `json:"backing"`
}

type VMNIC struct {
	Label     string   `json:"label"`
	MAC       string   `json:"mac"`
	Network   string   `json:"network"`
	Connected bool     `json:"connected"`
	IPs       []string `json:"ip_addresses"`
}

type GuestMount struct {
	Path      string `json:"path"`
	Capacity  int64  `json:"capacity_bytes"`
	FreeSpace int64  `json:"free_bytes"`
}

// Hypervisor is the fact blob a platform client produces for a host.
type Hypervisor struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	Address     string `json:"address"`
	Vendor      string `json:"vendor"`
	Model       string `json:"model"`
	CPUModel    string `json:"cpu_model"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryBytes int64  `json:"memory_bytes"`
	Product     string `json:"product"`
	Version     string `json:"version"`
	Build       string `json:"build"`
	NumNICs     int    `json:"num_nics"`
	NumHBAs     int    `json:"num_hbas"`
}

func normalizeVirtualMachine(raw []byte) (*models.NormalizedFacts, error) {
	var vm VirtualMachine
	if err := decode(raw, &vm); err != nil {
		return nil, err
	}
	if vm.Name == "" && vm.UUID == "" {
		return nil, fmt.Errorf("virtual machine blob has neither name nor uuid")
	}

	out := &models.NormalizedFacts{
		Address:      vm.IPAddress,
		HardwareUUID: strings.ToLower(vm.UUID),
	}
	out.Hostname = vm.Name
	out.Vendor = "VMware, Inc."
	out.Model = "VMware Virtual Platform"
	out.OSType = vm.GuestName
	out.OSVersion = vm.GuestID
	if strings.Contains(strings.ToLower(vm.GuestID), "64") {
		out.OSBits = "64"
	}
	out.BootType = strings.ToUpper(vm.Firmware)
	if out.BootType == "EFI" {
		out.BootType = "UEFI"
	}
	out.CPUCores = vm.NumCPU
	out.MemoryTotal = MiBToGiB(float64(vm.MemoryMB))
	out.VTPlatform = "VMware"
	out.VTPlatformVersion = vm.Version
	out.DeviceType = "vm"

	for i, d := range vm.Disks {
		out.Disks = append(out.Disks, models.Disk{
			Device: d.Label,
			Size:   BytesToGiB(float64(d.Capacity)),
			Model:  d.Backing,
			Index:  i,
		})
	}
	for _, v := range vm.Volumes {
		out.Mounts = append(out.Mounts, models.Mount{
			MountPoint:         v.Path,
			SizeTotal:          BytesToGiB(float64(v.Capacity)),
			SizeAvailable:      BytesToGiB(float64(v.FreeSpace)),
			SizeAvailableRatio: ratio(float64(v.FreeSpace), float64(v.Capacity)),
		})
	}
	sort.Slice(out.Mounts, func(i, j int) bool { return out.Mounts[i].MountPoint < out.Mounts[j].MountPoint })

	for _, n := range vm.NICs {
		nic := models.NIC{
			Name:   n.Label,
			MAC:    strings.ToLower(n.MAC),
			Active: n.Connected,
		}
		for _, ip := range n.IPs {
			if strings.Contains(ip, ":") {
				if nic.IPv6Address == "" {
					nic.IPv6Address = ip
				}
				continue
			}
			if nic.IPv4Address == "" {
				nic.IPv4Address = ip
			}
		}
		nic.IsDefault = vm.IPAddress != "" && nic.IPv4Address == vm.IPAddress
		if nic.IsDefault && out.MAC == "" {
			out.MAC = nic.MAC
		}
		out.NICs = append(out.NICs, nic)
	}
	if out.MAC == "" && len(out.NICs) > 0 {
		out.MAC = out.NICs[0].MAC
	}
	return out, nil
}

func normalizeHypervisor(raw []byte) (*models.NormalizedFacts, error) {
	var h Hypervisor
	if err := decode(raw, &h); err != nil {
		return nil, err
	}
	if h.Name == "" {
		return nil, fmt.Errorf("hypervisor blob has no name")
	}

	out := &models.NormalizedFacts{
		Address:      firstNonEmpty(h.Address, h.Name),
		HardwareUUID: strings.ToLower(h.UUID),
	}
	out.Hostname = h.Name
	out.Vendor = h.Vendor
	out.Model = h.Model
	out.OSType = h.Product
	out.OSVersion = h.Version
	out.OSKernel = h.Build
	out.OSBits = "64"
	out.CPUInfo = h.CPUModel
	out.CPUCores = h.CPUCores
	out.MemoryTotal = BytesToGiB(float64(h.MemoryBytes))
	out.VTPlatform = "VMware"
	out.VTPlatformVersion = h.Version
	out.DeviceType = "hypervisor"
	out.IsPhysical = true
	for i := 0; i < h.NumNICs; i++ {
		out.NICs = append(out.NICs, models.NIC{Name: fmt.Sprintf("vmnic%d", i)})
	}
	return out, nil
}
