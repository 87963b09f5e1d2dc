package facts

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// LocalHost is the fact blob of the local collector. Sizes are bytes.
type LocalHost struct {
	Hostname        string           `json:"hostname"`
	HostID          string           `json:"host_id"`
	OS              string           `json:"os"`
	Platform        string           `json:"platform"`
	PlatformVersion string           `json:"platform_version"`
	KernelVersion   string           `json:"kernel_version"`
	KernelArch      string           `json:"kernel_arch"`
	Virtualization  string           `json:"virtualization_system"`
	VirtRole        string           `json:"virtualization_role"`
	CPUModel        string           `json:"cpu_model"`
	CPUCores        int              `json:"cpu_cores"`
	MemoryTotal     uint64           `json:"memory_total"`
	MemoryFree      uint64           `json:"memory_available"`
	SwapTotal       uint64           `json:"swap_total"`
	Disks           []LocalDisk      `json:"disks"`
	Partitions      []LocalPartition `json:"partitions"`
	Interfaces      []LocalInterface `json:"interfaces"`
	EFI             bool             `json:"efi"`
}

type LocalDisk struct {
	Name   string `json:"name"`
	Size   uint64 `json:"size"`
	Model  string `json:"model"`
	Serial string `json:"serial"`
}

type LocalPartition struct {
	Device     string `json:"device"`
	MountPoint string `json:"mountpoint"`
	FSType     string `json:"fstype"`
	Total      uint64 `json:"total"`
	Free       uint64 `json:"free"`
}

type LocalInterface struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	MTU       int      `json:"mtu"`
	Up        bool     `json:"up"`
	Loopback  bool     `json:"loopback"`
	Addresses []string `json:"addrs"`
	Default   bool     `json:"default"`
	Gateway   string   `json:"gateway"`
}

func normalizeLocal(raw []byte) (*models.NormalizedFacts, error) {
	var h LocalHost
	if err := decode(raw, &h); err != nil {
		return nil, err
	}
	if h.Hostname == "" {
		return nil, fmt.Errorf("local facts carry no hostname")
	}

	out := &models.NormalizedFacts{HardwareUUID: strings.ToLower(h.HostID)}
	out.Hostname = h.Hostname
	out.OSType = firstNonEmpty(h.Platform, h.OS)
	out.OSVersion = h.PlatformVersion
	out.OSKernel = h.KernelVersion
	out.OSBits = bitsFromArch(h.KernelArch)
	out.CPUInfo = h.CPUModel
	out.CPUCores = h.CPUCores
	out.MemoryTotal = BytesToGiB(float64(h.MemoryTotal))
	out.MemoryFree = BytesToGiB(float64(h.MemoryFree))
	out.MemoryInfo = fmt.Sprintf("real %d MB, swap %d MB", h.MemoryTotal/1024/1024, h.SwapTotal/1024/1024)
	out.BootType = "BIOS"
	if h.EFI {
		out.BootType = "UEFI"
	}
	out.VTPlatform = h.Virtualization
	out.IsPhysical = h.VirtRole != "guest"
	out.DeviceType = "physical"
	if !out.IsPhysical {
		out.DeviceType = "vm"
	}

	disks := append([]LocalDisk(nil), h.Disks...)
	sort.Slice(disks, func(i, j int) bool { return disks[i].Name < disks[j].Name })
	for i, d := range disks {
		out.Disks = append(out.Disks, models.Disk{
			Device: d.Name,
			Size:   BytesToGiB(float64(d.Size)),
			Model:  d.Model,
			Index:  i,
		})
	}

	for _, p := range h.Partitions {
		if p.MountPoint == "/boot/efi" {
			out.BootType = "UEFI"
		}
		if p.Total == 0 {
			continue
		}
		out.Mounts = append(out.Mounts, models.Mount{
			Device:             p.Device,
			MountPoint:         p.MountPoint,
			FSType:             p.FSType,
			SizeTotal:          BytesToGiB(float64(p.Total)),
			SizeAvailable:      BytesToGiB(float64(p.Free)),
			SizeAvailableRatio: ratio(float64(p.Free), float64(p.Total)),
		})
	}

	for _, iface := range h.Interfaces {
		if iface.Loopback {
			continue
		}
		nic := models.NIC{
			Name:      iface.Name,
			MAC:       strings.ToLower(iface.MAC),
			Active:    iface.Up,
			MTU:       iface.MTU,
			IsDefault: iface.Default,
		}
		for _, addr := range iface.Addresses {
			ip, ipNet, err := net.ParseCIDR(addr)
			if err != nil {
				continue
			}
			if ip4 := ip.To4(); ip4 != nil {
				if nic.IPv4Address != "" {
					continue
				}
				nic.IPv4Address = ip4.String()
				nic.IPv4Netmask = net.IP(ipNet.Mask).String()
				nic.IPv4Network = ipNet.IP.String()
				nic.IPv4Broadcast = broadcast(ipNet)
				continue
			}
			if nic.IPv6Address == "" {
				nic.IPv6Address = ip.String()
			}
		}
		if nic.IsDefault {
			nic.Gateway = iface.Gateway
			out.Address = nic.IPv4Address
			out.MAC = nic.MAC
		}
		out.NICs = append(out.NICs, nic)
	}
	return out, nil
}

func broadcast(n *net.IPNet) string {
	ip := n.IP.To4()
	mask := net.IP(n.Mask).To4()
	if ip == nil || mask == nil {
		return ""
	}
	v := binary.BigEndian.Uint32(ip) | ^binary.BigEndian.Uint32(mask)
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, v)
	return out.String()
}
