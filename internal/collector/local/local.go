// Package local collects facts about the host the engine runs on.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/facts"
)

const sysBlock = "/sys/block"

type Collector struct{}

func New() *Collector {
	return &Collector{}
}

// Collect ignores the connection parameters: the target is always this host.
func (c *Collector) Collect(ctx context.Context, _ collector.ConnectionParams) ([]byte, error) {
	snapshot, err := Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, collector.NewError(collector.KindParse, "encoding local facts", err)
	}
	return raw, nil
}

// Snapshot reads the local host. Only host info is mandatory, every other
// probe is best effort.
func Snapshot(ctx context.Context) (*facts.LocalHost, error) {
	log := zap.S().Named("local")

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, collector.NewError(collector.KindOther, "reading host info", err)
	}

	out := &facts.LocalHost{
		Hostname:        info.Hostname,
		HostID:          info.HostID,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		Virtualization:  info.VirtualizationSystem,
		VirtRole:        info.VirtualizationRole,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		out.CPUModel = cpus[0].ModelName
	} else if err != nil {
		log.Debugw("cpu info unavailable", "error", err)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPUCores = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemoryTotal = vm.Total
		out.MemoryFree = vm.Available
	} else {
		log.Debugw("memory info unavailable", "error", err)
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out.SwapTotal = swap.Total
	}

	out.Partitions = partitions(ctx)
	out.Disks = blockDevices(ctx)
	out.Interfaces = interfaces(ctx)

	if _, err := os.Stat("/sys/firmware/efi"); err == nil {
		out.EFI = true
	}

	return out, nil
}

func partitions(ctx context.Context) []facts.LocalPartition {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		zap.S().Named("local").Debugw("partitions unavailable", "error", err)
		return nil
	}
	out := make([]facts.LocalPartition, 0, len(parts))
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, facts.LocalPartition{
			Device:     p.Device,
			MountPoint: p.Mountpoint,
			FSType:     p.Fstype,
			Total:      usage.Total,
			Free:       usage.Free,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MountPoint < out[j].MountPoint })
	return out
}

// blockDevices lists whole disks. Sizes come from sysfs where available.
func blockDevices(ctx context.Context) []facts.LocalDisk {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil
	}
	var out []facts.LocalDisk
	for name, c := range counters {
		if _, err := os.Stat(filepath.Join(sysBlock, name)); err != nil {
			// partitions and pseudo devices are not listed in /sys/block
			continue
		}
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "dm-") {
			continue
		}
		d := facts.LocalDisk{Name: name, Serial: c.SerialNumber}
		if sectors, err := readUint(filepath.Join(sysBlock, name, "size")); err == nil {
			d.Size = sectors * 512
		}
		if model, err := os.ReadFile(filepath.Join(sysBlock, name, "device", "model")); err == nil {
			d.Model = strings.TrimSpace(string(model))
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func interfaces(ctx context.Context) []facts.LocalInterface {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		zap.S().Named("local").Debugw("interfaces unavailable", "error", err)
		return nil
	}

	out := make([]facts.LocalInterface, 0, len(ifaces))
	defaultSet := false
	for _, iface := range ifaces {
		li := facts.LocalInterface{
			Name: iface.Name,
			MAC:  iface.HardwareAddr,
			MTU:  iface.MTU,
		}
		for _, f := range iface.Flags {
			switch f {
			case "up":
				li.Up = true
			case "loopback":
				li.Loopback = true
			}
		}
		for _, a := range iface.Addrs {
			li.Addresses = append(li.Addresses, a.Addr)
		}
		// first up interface with an IPv4 address carries the default route
		if !defaultSet && li.Up && !li.Loopback && hasIPv4(li.Addresses) {
			li.Default = true
			defaultSet = true
		}
		out = append(out, li)
	}
	return out
}

func hasIPv4(addrs []string) bool {
	for _, a := range addrs {
		if !strings.Contains(a, ":") {
			return true
		}
	}
	return false
}

func readUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}
