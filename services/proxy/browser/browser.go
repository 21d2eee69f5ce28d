// Package browser launches the system default browser pointed at a
// consumer report URL, the fire-and-forget side effect the supervisor
// triggers on a report name's first registration.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener opens a URL in the user's default browser. Injected into the
// registry so tests never shell out.
type Opener interface {
	Open(url string) error
}

// DefaultOpener shells out to the platform browser-launch command.
type DefaultOpener struct{}

// Open launches the system default browser for url, asynchronously: the
// spawned process is not waited on.
//
//   - macOS: "open <url>"
//   - Linux: "xdg-open <url>"
//   - Windows: "cmd /c start <url>"
func (DefaultOpener) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

// NopOpener discards every Open call; used when browser launching is
// disabled (headless deployments, tests).
type NopOpener struct{}

// Open is a no-op.
func (NopOpener) Open(string) error { return nil }
