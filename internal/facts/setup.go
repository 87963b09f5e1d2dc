package facts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// setupFacts is the subset of the ad-hoc "setup" module output we read.
type setupFacts struct {
	Hostname          string                 `json:"ansible_hostname"`
	FQDN              string                 `json:"ansible_fqdn"`
	DefaultIPv4       setupAddress           `json:"ansible_default_ipv4"`
	SystemVendor      string                 `json:"ansible_system_vendor"`
	ProductName       string                 `json:"ansible_product_name"`
	ProductUUID       string                 `json:"ansible_product_uuid"`
	Distribution      string                 `json:"ansible_distribution"`
	DistributionVer   string                 `json:"ansible_distribution_version"`
	OSName            string                 `json:"ansible_os_name"`
	Kernel            string                 `json:"ansible_kernel"`
	Architecture      string                 `json:"ansible_architecture"`
	UserspaceBits     string                 `json:"ansible_userspace_bits"`
	Processor         []string               `json:"ansible_processor"`
	ProcessorVCPUs    number                 `json:"ansible_processor_vcpus"`
	ProcessorCores    number                 `json:"ansible_processor_cores"`
	ProcessorCount    number                 `json:"ansible_processor_count"`
	MemTotalMB        number                 `json:"ansible_memtotal_mb"`
	MemFreeMB         number                 `json:"ansible_memfree_mb"`
	SwapTotalMB       number                 `json:"ansible_swaptotal_mb"`
	Devices           map[string]setupDevice `json:"ansible_devices"`
	Mounts            []setupMount           `json:"ansible_mounts"`
	Interfaces        json.RawMessage        `json:"ansible_interfaces"`
	VirtualizationTyp string                 `json:"ansible_virtualization_type"`
	VirtualizationRol string                 `json:"ansible_virtualization_role"`
}

type setupAddress struct {
	Address    string `json:"address"`
	Netmask    string `json:"netmask"`
	Network    string `json:"network"`
	Broadcast  string `json:"broadcast"`
	MACAddress string `json:"macaddress"`
	Interface  string `json:"interface"`
	Gateway    string `json:"gateway"`
}

type setupDevice struct {
	Vendor     string `json:"vendor"`
	Model      string `json:"model"`
	Sectors    number `json:"sectors"`
	SectorSize number `json:"sectorsize"`
	Removable  string `json:"removable"`
}

type setupMount struct {
	Device        string `json:"device"`
	Mount         string `json:"mount"`
	FSType        string `json:"fstype"`
	SizeTotal     number `json:"size_total"`
	SizeAvailable number `json:"size_available"`
}

type setupInterface struct {
	Device     string         `json:"device"`
	MACAddress string         `json:"macaddress"`
	Active     bool           `json:"active"`
	MTU        number         `json:"mtu"`
	Speed      number         `json:"speed"`
	IPv4       setupAddress   `json:"ipv4"`
	IPv6       []setupAddress `json:"ipv6"`
}

// windowsInterface is an entry of ansible_interfaces on Windows targets.
type windowsInterface struct {
	Name           string `json:"interface_name"`
	MACAddress     string `json:"macaddress"`
	DefaultGateway string `json:"default_gateway"`
	MTU            number `json:"mtu"`
}

var skippedDevicePrefixes = []string{"loop", "ram", "sr", "dm-", "zram", "fd"}

func normalizeSetup(raw []byte, kind models.UnitKind) (*models.NormalizedFacts, error) {
	var envelope map[string]json.RawMessage
	if err := decode(raw, &envelope); err != nil {
		return nil, err
	}
	if inner, ok := envelope["ansible_facts"]; ok {
		raw = inner
		envelope = nil
		if err := decode(raw, &envelope); err != nil {
			return nil, err
		}
	}

	var f setupFacts
	if err := decode(raw, &f); err != nil {
		return nil, err
	}
	if f.Hostname == "" && f.FQDN == "" && f.DefaultIPv4.Address == "" {
		return nil, fmt.Errorf("setup facts carry no host identity")
	}

	out := &models.NormalizedFacts{
		Address:      f.DefaultIPv4.Address,
		MAC:          f.DefaultIPv4.MACAddress,
		HardwareUUID: cleanUUID(f.ProductUUID),
	}
	out.Hostname = firstNonEmpty(f.Hostname, f.FQDN)
	out.Vendor = f.SystemVendor
	out.Model = f.ProductName
	out.OSType = firstNonEmpty(f.Distribution, f.OSName)
	out.OSVersion = f.DistributionVer
	out.OSKernel = f.Kernel
	out.OSBits = firstNonEmpty(f.UserspaceBits, bitsFromArch(f.Architecture))
	out.CPUInfo = processorModel(f.Processor)
	out.CPUCores = int(f.ProcessorVCPUs)
	if out.CPUCores == 0 {
		out.CPUCores = int(f.ProcessorCores) * max(int(f.ProcessorCount), 1)
	}
	out.MemoryTotal = MiBToGiB(float64(f.MemTotalMB))
	out.MemoryFree = MiBToGiB(float64(f.MemFreeMB))
	if f.MemTotalMB > 0 {
		out.MemoryInfo = fmt.Sprintf("real %d MB, swap %d MB", int64(f.MemTotalMB), int64(f.SwapTotalMB))
	}

	out.Disks = setupDisks(f.Devices)
	out.Mounts, out.BootType = setupMounts(f.Mounts)
	if kind == models.UnitKindWindows {
		out.BootType = ""
	}

	nics, err := setupNICs(f, envelope)
	if err != nil {
		return nil, err
	}
	out.NICs = nics

	out.VTPlatform = f.VirtualizationTyp
	out.IsPhysical = f.VirtualizationRol != "guest" && !isVirtualVendor(f.SystemVendor+" "+f.ProductName)
	if out.IsPhysical {
		out.DeviceType = "physical"
	} else {
		out.DeviceType = "vm"
	}
	return out, nil
}

func setupDisks(devices map[string]setupDevice) []models.Disk {
	names := make([]string, 0, len(devices))
	for name, d := range devices {
		if d.Removable == "1" || hasAnyPrefix(name, skippedDevicePrefixes) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	disks := make([]models.Disk, 0, len(names))
	for i, name := range names {
		d := devices[name]
		sectorSize := float64(d.SectorSize)
		if sectorSize == 0 {
			sectorSize = 512
		}
		disks = append(disks, models.Disk{
			Device: name,
			Size:   BytesToGiB(float64(d.Sectors) * sectorSize),
			Vendor: strings.TrimSpace(d.Vendor),
			Model:  strings.TrimSpace(d.Model),
			Index:  i,
		})
	}
	return disks
}

func setupMounts(mounts []setupMount) ([]models.Mount, string) {
	bootType := "BIOS"
	out := make([]models.Mount, 0, len(mounts))
	for _, m := range mounts {
		if m.Mount == "/boot/efi" {
			bootType = "UEFI"
		}
		if m.SizeTotal <= 0 {
			continue
		}
		out = append(out, models.Mount{
			Device:             m.Device,
			MountPoint:         m.Mount,
			FSType:             m.FSType,
			SizeTotal:          BytesToGiB(float64(m.SizeTotal)),
			SizeAvailable:      BytesToGiB(float64(m.SizeAvailable)),
			SizeAvailableRatio: ratio(float64(m.SizeAvailable), float64(m.SizeTotal)),
		})
	}
	return out, bootType
}

func setupNICs(f setupFacts, envelope map[string]json.RawMessage) ([]models.NIC, error) {
	if len(f.Interfaces) == 0 {
		return []models.NIC{}, nil
	}

	var names []string
	if err := json.Unmarshal(f.Interfaces, &names); err != nil {
		var win []windowsInterface
		if err := json.Unmarshal(f.Interfaces, &win); err != nil {
			return nil, fmt.Errorf("decoding interfaces: %w", err)
		}
		return windowsNICs(win, f.DefaultIPv4), nil
	}
	sort.Strings(names)

	nics := make([]models.NIC, 0, len(names))
	for _, name := range names {
		if name == "lo" {
			continue
		}
		rawIface, ok := envelope["ansible_"+strings.NewReplacer("-", "_", ".", "_").Replace(name)]
		if !ok {
			nics = append(nics, models.NIC{Name: name})
			continue
		}
		var iface setupInterface
		if err := json.Unmarshal(rawIface, &iface); err != nil {
			return nil, fmt.Errorf("decoding interface %s: %w", name, err)
		}
		nic := models.NIC{
			Name:          name,
			MAC:           iface.MACAddress,
			Active:        iface.Active,
			MTU:           int(iface.MTU),
			Speed:         int(iface.Speed),
			IPv4Address:   iface.IPv4.Address,
			IPv4Netmask:   iface.IPv4.Netmask,
			IPv4Network:   iface.IPv4.Network,
			IPv4Broadcast: iface.IPv4.Broadcast,
			IsDefault:     name == f.DefaultIPv4.Interface,
		}
		if len(iface.IPv6) > 0 {
			nic.IPv6Address = iface.IPv6[0].Address
		}
		if nic.IsDefault {
			nic.Gateway = f.DefaultIPv4.Gateway
		}
		nics = append(nics, nic)
	}
	return nics, nil
}

func windowsNICs(ifaces []windowsInterface, def setupAddress) []models.NIC {
	nics := make([]models.NIC, 0, len(ifaces))
	for _, w := range ifaces {
		nic := models.NIC{
			Name:      w.Name,
			MAC:       w.MACAddress,
			Active:    true,
			MTU:       int(w.MTU),
			Gateway:   w.DefaultGateway,
			IsDefault: w.DefaultGateway != "" || (def.MACAddress != "" && strings.EqualFold(def.MACAddress, w.MACAddress)),
		}
		if nic.IsDefault {
			nic.IPv4Address = def.Address
		}
		nics = append(nics, nic)
	}
	return nics
}

// processorModel picks the model string out of ansible_processor, which
// interleaves indexes, vendor ids and model names.
func processorModel(entries []string) string {
	for _, e := range entries {
		if strings.Contains(strings.TrimSpace(e), " ") {
			return strings.TrimSpace(e)
		}
	}
	for _, e := range entries {
		if strings.Trim(e, "0123456789") != "" {
			return e
		}
	}
	return ""
}

func cleanUUID(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "NA") {
		return ""
	}
	return strings.ToLower(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
