package syncrouter

import (
	"context"
	"fmt"
	"os/exec"
)

// SCPBackend shells out to the system scp binary, for destinations
// addressed as user@host:path rather than a second local mount. Same
// exec-wrapping rationale as RsyncBackend.
type SCPBackend struct {
	Host    string
	User    string
	KeyPath string
}

// NewSCPBackend constructs an SCPBackend.
func NewSCPBackend(host, user, keyPath string) *SCPBackend {
	return &SCPBackend{Host: host, User: user, KeyPath: keyPath}
}

// Send runs "scp <localPath> [user@]host:<destPath>".
func (b *SCPBackend) Send(ctx context.Context, localPath, destPath string) error {
	args := []string{}
	if b.KeyPath != "" {
		args = append(args, "-i", b.KeyPath)
	}

	target := b.Host
	if b.User != "" {
		target = b.User + "@" + b.Host
	}
	args = append(args, localPath, fmt.Sprintf("%s:%s", target, destPath))

	cmd := exec.CommandContext(ctx, "scp", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("syncrouter: scp: %w: %s", err, out)
	}
	return nil
}
