// Package browser opens authorization URLs in the system browser and
// tracks the launcher process so an abandoned login can be detected.
package browser

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
)

// Opener launches URLs with the platform's URL handler.
type Opener struct {
	logger *slog.Logger
}

// NewOpener creates a browser opener.
func NewOpener(logger *slog.Logger) *Opener {
	return &Opener{logger: logger}
}

// Open hands the URL to the platform launcher and returns a Window
// tracking it.
func (o *Opener) Open(url string) (*Window, error) {
	name, args := launcherCommand(runtime.GOOS, url)

	o.logger.Debug("opening authorization url",
		slog.String("launcher", name),
		slog.String("url", url),
	)

	return startWindow(name, args...)
}

// launcherCommand returns the platform's open-a-URL command.
func launcherCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// Window is a launched browser window. Launchers like xdg-open hand the
// URL to the running browser and exit immediately, so a clean launcher
// exit does not mean the tab was closed; the window only counts as
// closed when the launcher failed or Close was called.
type Window struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	exited bool
	err    error
	closed bool
}

func startWindow(name string, args ...string) (*Window, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	w := &Window{cmd: cmd}
	go w.wait()
	return w, nil
}

func (w *Window) wait() {
	err := w.cmd.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.exited = true
	w.err = err
	if err != nil {
		w.closed = true
	}
}

// IsClosed reports whether the window is gone: the launcher failed or
// Close was called.
func (w *Window) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close terminates the launcher if it is still running and marks the
// window closed. The browser tab itself is out of our hands.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if !w.exited && w.cmd.Process != nil {
		if err := w.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("terminate launcher: %w", err)
		}
	}
	return nil
}
