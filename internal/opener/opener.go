// Package opener reopens restored tabs.
package opener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// ErrNoLauncher is returned when no command is known for opening URLs on this
// platform.
var ErrNoLauncher = errors.New("no URL launcher for this platform")

// Command opens URLs by running a desktop command. The destination, when set,
// names the browser executable to run instead of the system default handler.
type Command struct {
	// Launcher overrides the default handler command and its leading arguments.
	Launcher []string
	// run executes the command; replaced in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewCommand returns a Command using the platform's default URL handler.
func NewCommand() *Command {
	return &Command{Launcher: defaultLauncher(runtime.GOOS), run: runCommand}
}

func defaultLauncher(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"xdg-open"}
	}
	return nil
}

// Open launches url.
func (c *Command) Open(ctx context.Context, url, destination string) error {
	argv := append([]string(nil), c.Launcher...)
	if destination != "" {
		argv = []string{destination}
	}
	if len(argv) == 0 {
		return ErrNoLauncher
	}
	argv = append(argv, url)

	if err := c.run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("opener: %s: %w", argv[0], err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, out)
	}
	return err
}

// Printer writes each URL to w instead of opening it.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Open writes url, followed by the destination when one is given.
func (p *Printer) Open(_ context.Context, url, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if destination != "" {
		_, err = fmt.Fprintf(p.w, "%s\t%s\n", url, destination)
	} else {
		_, err = fmt.Fprintln(p.w, url)
	}
	return err
}

// Call is one recorded Open.
type Call struct {
	URL         string
	Destination string
}

// Recorder remembers every Open call and can be told to fail specific URLs.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

// Fail makes Open return err for url.
func (r *Recorder) Fail(url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail == nil {
		r.fail = make(map[string]error)
	}
	r.fail[url] = err
}

// Open records the call.
func (r *Recorder) Open(_ context.Context, url, destination string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[url]; err != nil {
		return err
	}
	r.calls = append(r.calls, Call{URL: url, Destination: destination})
	return nil
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
