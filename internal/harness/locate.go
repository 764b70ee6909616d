package harness

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds a --version call.
const versionTimeout = 10 * time.Second

// LocateBinary locates binary on PATH and runs it with --version. env replaces the
// child's environment when non-nil.
func LocateBinary(ctx context.Context, binary string, env []string) (path, version string, err error) {
	path, err = exec.LookPath(binary)
	if err != nil {
		return "", "", fmt.Errorf("%s not found: %w", binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Env = env
	cmd.SysProcAttr = sessionAttr()

	out, err := cmd.Output()
	if err != nil {
		return path, "", fmt.Errorf("%s --version: %w", path, err)
	}
	version, _, _ = strings.Cut(strings.TrimSpace(string(out)), "\n")
	return path, version, nil
}
