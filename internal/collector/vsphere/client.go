// Package vsphere lists virtual machines and ESXi hosts of a vCenter.
package vsphere

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/facts"
	"github.com/kubev2v/inventory-collector/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Timeout  time.Duration
}

// ConfigFromPlatform builds the connection config of a platform record.
// password is the plaintext password.
func ConfigFromPlatform(p *models.Platform, password string) Config {
	port := p.Port
	if port == 0 {
		port = 443
	}
	host := p.Host
	if !strings.Contains(host, "://") {
		host = fmt.Sprintf("https://%s:%d", host, port)
	}
	return Config{
		URL:      host,
		Username: p.Username,
		Password: password,
		Insecure: p.Insecure,
	}
}

// Client is a logged in vCenter session.
type Client struct {
	client *govmomi.Client
	url    *url.URL
}

// Dial logs into vCenter.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	u, err := parseVCenterURL(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	loginCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vimClient, err := vim25.NewClient(loginCtx, soap.NewClient(u, cfg.Insecure))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", u.Host, err)
	}

	client := &govmomi.Client{
		SessionManager: session.NewManager(vimClient),
		Client:         vimClient,
	}

	if err := client.Login(loginCtx, u.User); err != nil {
		if strings.Contains(err.Error(), "Login failure") ||
			(strings.Contains(err.Error(), "incorrect") && strings.Contains(err.Error(), "password")) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("logging into %s: %w", u.Host, err)
	}

	zap.S().Named("platform").Debugw("vCenter session opened", "host", u.Host)
	return &Client{client: client, url: u}, nil
}

// Verify checks that cfg can log in.
func Verify(ctx context.Context, cfg Config) error {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}
	return c.Close(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	err := c.client.Logout(ctx)
	c.client.CloseIdleConnections()
	return err
}

// ListVMs returns every virtual machine except templates, sorted by name.
func (c *Client) ListVMs(ctx context.Context) ([]models.VMRecord, error) {
	m := view.NewManager(c.client.Client)
	v, err := m.CreateContainerView(ctx, c.client.ServiceContent.RootFolder, []string{"VirtualMachine"}, true)
	if err != nil {
		return nil, fmt.Errorf("creating vm view: %w", err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	var vms []mo.VirtualMachine
	if err := v.Retrieve(ctx, []string{"VirtualMachine"}, []string{"name", "config", "guest", "runtime"}, &vms); err != nil {
		return nil, fmt.Errorf("retrieving vms: %w", err)
	}

	hostNames, err := c.hostNames(ctx, m)
	if err != nil {
		return nil, err
	}

	records := make([]models.VMRecord, 0, len(vms))
	for _, vm := range vms {
		if vm.Config != nil && vm.Config.Template {
			continue
		}
		blob := vmBlob(vm, hostNames)
		raw, err := json.Marshal(blob)
		if err != nil {
			return nil, fmt.Errorf("encoding vm %s: %w", vm.Name, err)
		}
		records = append(records, models.VMRecord{
			Name:        blob.Name,
			UUID:        blob.UUID,
			IPAddresses: vmAddresses(blob),
			Raw:         raw,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// ListHypervisors returns every ESXi host, sorted by name.
func (c *Client) ListHypervisors(ctx context.Context) ([]models.HypervisorRecord, error) {
	hosts, err := c.retrieveHosts(ctx, view.NewManager(c.client.Client))
	if err != nil {
		return nil, err
	}

	records := make([]models.HypervisorRecord, 0, len(hosts))
	for _, h := range hosts {
		blob := hostBlob(h)
		raw, err := json.Marshal(blob)
		if err != nil {
			return nil, fmt.Errorf("encoding host %s: %w", h.Name, err)
		}
		records = append(records, models.HypervisorRecord{
			Name:    blob.Name,
			Address: blob.Address,
			UUID:    blob.UUID,
			Raw:     raw,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (c *Client) retrieveHosts(ctx context.Context, m *view.Manager) ([]mo.HostSystem, error) {
	v, err := m.CreateContainerView(ctx, c.client.ServiceContent.RootFolder, []string{"HostSystem"}, true)
	if err != nil {
		return nil, fmt.Errorf("creating host view: %w", err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	var hosts []mo.HostSystem
	if err := v.Retrieve(ctx, []string{"HostSystem"}, []string{"name", "summary"}, &hosts); err != nil {
		return nil, fmt.Errorf("retrieving hosts: %w", err)
	}
	return hosts, nil
}

func (c *Client) hostNames(ctx context.Context, m *view.Manager) (map[string]string, error) {
	hosts, err := c.retrieveHosts(ctx, m)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(hosts))
	for _, h := range hosts {
		names[h.Reference().Value] = h.Name
	}
	return names, nil
}

func vmBlob(vm mo.VirtualMachine, hostNames map[string]string) facts.VirtualMachine {
	blob := facts.VirtualMachine{
		Name:       vm.Name,
		PowerState: string(vm.Runtime.PowerState),
	}
	if vm.Runtime.Host != nil {
		blob.HostName = hostNames[vm.Runtime.Host.Value]
	}

	if cfg := vm.Config; cfg != nil {
		blob.UUID = cfg.Uuid
		blob.GuestID = cfg.GuestId
		blob.GuestName = cfg.GuestFullName
		blob.Firmware = cfg.Firmware
		blob.Version = cfg.Version
		blob.NumCPU = int(cfg.Hardware.NumCPU)
		blob.MemoryMB = int64(cfg.Hardware.MemoryMB)

		for _, dev := range cfg.Hardware.Device {
			switch d := dev.(type) {
			case *types.VirtualDisk:
				blob.Disks = append(blob.Disks, facts.VMDisk{
					Label:    deviceLabel(d.GetVirtualDevice()),
					Capacity: d.CapacityInBytes,
					Backing:  fmt.Sprintf("%T", d.Backing),
				})
			case types.BaseVirtualEthernetCard:
				card := d.GetVirtualEthernetCard()
				nic := facts.VMNIC{
					Label: deviceLabel(&card.VirtualDevice),
					MAC:   card.MacAddress,
				}
				if card.Connectable != nil {
					nic.Connected = card.Connectable.Connected
				}
				blob.NICs = append(blob.NICs, nic)
			}
		}
	}

	if g := vm.Guest; g != nil {
		blob.IPAddress = g.IpAddress
		blob.ToolsStatus = string(g.ToolsStatus)
		if blob.GuestName == "" {
			blob.GuestName = g.GuestFullName
		}
		for _, n := range g.Net {
			for i := range blob.NICs {
				if strings.EqualFold(blob.NICs[i].MAC, n.MacAddress) {
					blob.NICs[i].IPs = append(blob.NICs[i].IPs, n.IpAddress...)
					blob.NICs[i].Network = n.Network
				}
			}
		}
		for _, d := range g.Disk {
			blob.Volumes = append(blob.Volumes, facts.GuestMount{
				Path:      d.DiskPath,
				Capacity:  d.Capacity,
				FreeSpace: d.FreeSpace,
			})
		}
	}
	return blob
}

func hostBlob(h mo.HostSystem) facts.Hypervisor {
	blob := facts.Hypervisor{
		Name:    h.Name,
		Address: h.Summary.Config.Name,
	}
	if hw := h.Summary.Hardware; hw != nil {
		blob.UUID = hw.Uuid
		blob.Vendor = hw.Vendor
		blob.Model = hw.Model
		blob.CPUModel = hw.CpuModel
		blob.CPUCores = int(hw.NumCpuCores)
		blob.MemoryBytes = hw.MemorySize
		blob.NumNICs = int(hw.NumNics)
		blob.NumHBAs = int(hw.NumHBAs)
	}
	if p := h.Summary.Config.Product; p != nil {
		blob.Product = p.Name
		blob.Version = p.Version
		blob.Build = p.Build
	}
	return blob
}

func deviceLabel(d *types.VirtualDevice) string {
	if d.DeviceInfo == nil {
		return fmt.Sprintf("device-%d", d.Key)
	}
	if desc := d.DeviceInfo.GetDescription(); desc != nil && desc.Label != "" {
		return desc.Label
	}
	return fmt.Sprintf("device-%d", d.Key)
}

func vmAddresses(blob facts.VirtualMachine) []string {
	seen := map[string]bool{}
	var out []string
	add := func(ip string) {
		if ip != "" && !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	add(blob.IPAddress)
	for _, n := range blob.NICs {
		for _, ip := range n.IPs {
			add(ip)
		}
	}
	return out
}

func parseVCenterURL(cfg Config) (*url.URL, error) {
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/sdk"
	}
	u.User = url.UserPassword(cfg.Username, cfg.Password)
	return u, nil
}
