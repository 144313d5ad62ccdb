package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var (
	goos = func() string { return runtime.GOOS }

	startCommand = func(name string, args ...string) error { return exec.Command(name, args...).Start() }
)

// OpenStream hands a signed stream URL to the system's default handler, usually a browser
// or media player. Only absolute http(s) URLs are accepted.
func OpenStream(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not a stream url: %q", ErrInvalidInput, rawURL)
	}

	name, args, err := streamLauncher(goos(), u.String())
	if err != nil {
		return err
	}
	if err := startCommand(name, args...); err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	return nil
}

// streamLauncher picks the opener for the platform. The token query string contains '&',
// which cmd's start builtin would treat as a command separator, so Windows goes through
// rundll32 instead.
func streamLauncher(platform, target string) (string, []string, error) {
	switch platform {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	}
	return "", nil, fmt.Errorf("unsupported platform: %s", platform)
}
