// Package ansible collects setup facts from remote hosts with ad-hoc runs.
package ansible

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/pkg/adhoc"
)

const defaultWinRMPort = 5986

var authMarkers = []string{
	"permission denied",
	"authentication failed",
	"invalid credentials",
	"incorrect password",
	"credentials were rejected",
	"unauthorized",
}

type Options struct {
	Binary          string
	Timeout         time.Duration
	WorkDir         string
	SSHPrecheck     bool
	PrecheckTimeout time.Duration
}

type Collector struct {
	runner Runner
	opts   Options
}

func New(runner Runner, opts Options) *Collector {
	if opts.Binary == "" {
		opts.Binary = "ansible"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.PrecheckTimeout == 0 {
		opts.PrecheckTimeout = 10 * time.Second
	}
	return &Collector{runner: runner, opts: opts}
}

func (c *Collector) Collect(ctx context.Context, p collector.ConnectionParams) ([]byte, error) {
	if p.Credentials == nil {
		return nil, collector.NewError(collector.KindAuth, "missing credentials", nil)
	}
	host := p.Target()
	if host == "" {
		return nil, collector.NewError(collector.KindOther, "unit has neither address nor name", nil)
	}
	log := zap.S().Named("ansible").With("unit_id", p.UnitID, "host", host)

	if c.opts.SSHPrecheck && p.Kind == models.UnitKindLinux {
		if err := sshPrecheck(ctx, host, p.Credentials, c.opts.PrecheckTimeout); err != nil {
			log.Debugw("ssh precheck failed", "error", err)
			return nil, err
		}
	}

	inventory, err := c.writeInventory(host, p)
	if err != nil {
		return nil, collector.NewError(collector.KindOther, "writing inventory", err)
	}
	defer func() { _ = os.Remove(inventory) }()

	runCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runner.Run(runCtx,
		[]string{"ANSIBLE_HOST_KEY_CHECKING=False", "ANSIBLE_NOCOLOR=1"},
		c.opts.Binary, "all", "-i", inventory, "-m", "setup", "--one-line",
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, collector.NewError(collector.KindTimeout, fmt.Sprintf("no answer after %s", c.opts.Timeout), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, collector.NewError(collector.KindOther, "running "+c.opts.Binary, err)
	}
	log.Debugw("ad-hoc run finished", "exit_code", out.ExitCode, "duration", time.Since(start))

	result, err := adhoc.ParseMultiHostOutput(out.Stdout, out.Stderr, out.ExitCode)
	if err != nil {
		return nil, collector.NewError(collector.KindOther, "", err)
	}

	if data, ok := result.Success[host]; ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, collector.NewError(collector.KindParse, "encoding facts", err)
		}
		return raw, nil
	}
	if data, ok := result.Unreachable[host]; ok {
		return nil, collector.NewError(collector.KindUnreachable, adhoc.Message(data), nil)
	}
	if data, ok := result.Failed[host]; ok {
		msg := adhoc.Message(data)
		return nil, collector.NewError(classifyFailure(msg), msg, nil)
	}
	return nil, collector.NewError(collector.KindOther, fmt.Sprintf("no result for host %s", host), nil)
}

type inventoryFile struct {
	All struct {
		Hosts map[string]hostVars `yaml:"hosts"`
	} `yaml:"all"`
}

type hostVars struct {
	User                string `yaml:"ansible_user,omitempty"`
	Password            string `yaml:"ansible_password,omitempty"`
	Port                int    `yaml:"ansible_port,omitempty"`
	KeyFile             string `yaml:"ansible_ssh_private_key_file,omitempty"`
	Connection          string `yaml:"ansible_connection,omitempty"`
	WinRMTransport      string `yaml:"ansible_winrm_transport,omitempty"`
	WinRMCertValidation string `yaml:"ansible_winrm_server_cert_validation,omitempty"`
}

func (c *Collector) writeInventory(host string, p collector.ConnectionParams) (string, error) {
	vars := hostVars{
		User:     p.Credentials.Username,
		Password: p.Credentials.Password,
		Port:     p.Credentials.Port,
		KeyFile:  p.Credentials.KeyPath,
	}
	if p.Kind == models.UnitKindWindows {
		vars.Connection = "winrm"
		vars.WinRMTransport = "ntlm"
		vars.WinRMCertValidation = "ignore"
		vars.KeyFile = ""
		if vars.Port == 0 || vars.Port == models.DefaultSSHPort {
			vars.Port = defaultWinRMPort
		}
	}

	var inv inventoryFile
	inv.All.Hosts = map[string]hostVars{host: vars}
	content, err := yaml.Marshal(&inv)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(c.opts.WorkDir, "inventory-*.yml")
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if err := f.Chmod(0o600); err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func classifyFailure(msg string) collector.ErrorKind {
	lower := strings.ToLower(msg)
	for _, m := range authMarkers {
		if strings.Contains(lower, m) {
			return collector.KindAuth
		}
	}
	if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
		return collector.KindTimeout
	}
	return collector.KindOther
}
