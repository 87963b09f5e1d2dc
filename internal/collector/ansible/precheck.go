package ansible

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/kubev2v/inventory-collector/internal/collector"
	"github.com/kubev2v/inventory-collector/internal/models"
)

// sshPrecheck opens and closes an SSH session so that auth and reachability
// failures are classified before the ad-hoc run.
func sshPrecheck(ctx context.Context, host string, creds *models.Credentials, timeout time.Duration) error {
	auth, err := authMethods(creds)
	if err != nil {
		return collector.NewError(collector.KindAuth, "loading ssh key", err)
	}

	port := creds.Port
	if port == 0 {
		port = models.DefaultSSHPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyDial(ctx, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106
		Timeout:         timeout,
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return collector.NewError(collector.KindAuth, "ssh authentication failed", err)
		}
		return classifyDial(ctx, err)
	}
	return ssh.NewClient(c, chans, reqs).Close()
}

func authMethods(creds *models.Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if creds.KeyPath != "" {
		pem, err := os.ReadFile(creds.KeyPath)
		if err != nil {
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		password := creds.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no password or key for user %q", creds.Username)
	}
	return methods, nil
}

func classifyDial(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return collector.NewError(collector.KindTimeout, "ssh connection timed out", err)
	}
	return collector.NewError(collector.KindUnreachable, "ssh connection failed", err)
}
