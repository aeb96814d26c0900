// Package browser opens the Infomaniak login page in the user's default web browser.
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// openFunc and lookPath are replaced in tests.
var (
	openFunc = open.Run
	lookPath = exec.LookPath
)

// OpenURL opens url in the default web browser. It tries open-golang first and
// falls back to platform specific commands.
func OpenURL(url string) error {
	err := openFunc(url)
	if err == nil {
		log.Debug("Successfully opened URL using open-golang library")
		return nil
	}

	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(url)
}

func openURLPlatformSpecific(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, browser := range linuxBrowsers {
			if path, err := lookPath(browser); err == nil {
				cmd = exec.Command(path, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("no suitable browser found on Linux system")
		}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// IsAvailable reports whether a browser can likely be opened. It returns false
// in SSH sessions without a display.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := lookPath("open")
		return err == nil
	case "windows":
		_, err := lookPath("rundll32")
		return err == nil
	case "linux":
		if strings.TrimSpace(os.Getenv("DISPLAY")) == "" && strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY")) == "" {
			return false
		}
		for _, browser := range linuxBrowsers {
			if _, err := lookPath(browser); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}
