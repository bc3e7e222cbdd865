package opener

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCommand_Open(t *testing.T) {
	tests := []struct {
		name        string
		launcher    []string
		destination string
		want        []string
		wantErr     error
	}{
		{"default handler", []string{"xdg-open"}, "", []string{"xdg-open", "https://a"}, nil},
		{"handler with args", []string{"rundll32", "url.dll,FileProtocolHandler"}, "", []string{"rundll32", "url.dll,FileProtocolHandler", "https://a"}, nil},
		{"named browser", []string{"xdg-open"}, "firefox", []string{"firefox", "https://a"}, nil},
		{"no launcher", nil, "", nil, ErrNoLauncher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			c := &Command{Launcher: tt.launcher, run: func(_ context.Context, name string, args ...string) error {
				got = append([]string{name}, args...)
				return nil
			}}

			err := c.Open(context.Background(), "https://a", tt.destination)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommand_OpenFailure(t *testing.T) {
	boom := errors.New("exit status 3")
	c := &Command{Launcher: []string{"xdg-open"}, run: func(context.Context, string, ...string) error { return boom }}

	if err := c.Open(context.Background(), "https://a", ""); !errors.Is(err, boom) {
		t.Errorf("Open() = %v, want %v", err, boom)
	}
}

func TestDefaultLauncher(t *testing.T) {
	for goos, want := range map[string]string{"linux": "xdg-open", "darwin": "open", "windows": "rundll32"} {
		if got := defaultLauncher(goos); len(got) == 0 || got[0] != want {
			t.Errorf("defaultLauncher(%s) = %v, want %s first", goos, got, want)
		}
	}
	if got := defaultLauncher("plan9"); got != nil {
		t.Errorf("defaultLauncher(plan9) = %v, want nil", got)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	_ = p.Open(context.Background(), "https://a", "")
	_ = p.Open(context.Background(), "https://b", "work")

	if want := "https://a\nhttps://b\twork\n"; buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	boom := errors.New("boom")
	r.Fail("https://bad", boom)

	_ = r.Open(context.Background(), "https://a", "w1")
	if err := r.Open(context.Background(), "https://bad", ""); !errors.Is(err, boom) {
		t.Errorf("Open(bad) = %v, want %v", err, boom)
	}

	if diff := cmp.Diff([]Call{{URL: "https://a", Destination: "w1"}}, r.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}
