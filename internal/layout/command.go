package layout

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultCommand queries the running X server.
var DefaultCommand = []string{"setxkbmap", "-query"}

// CommandReader runs a command printing "key: value" lines, such as
// setxkbmap -query, and parses its output.
type CommandReader struct {
	Command []string
}

// NewCommandReader returns a reader for argv, or DefaultCommand if empty.
func NewCommandReader(argv ...string) *CommandReader {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	return &CommandReader{Command: argv}
}

// Read implements Reader.
func (r *CommandReader) Read(ctx context.Context) (Info, error) {
	if len(r.Command) == 0 {
		return Info{}, ErrNotConfigured
	}

	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Info{}, fmt.Errorf("%s: %w: %s", r.Command[0], err, msg)
		}
		return Info{}, fmt.Errorf("%s: %w", r.Command[0], err)
	}

	info := ParseQuery(out)
	if info.Layout == "" {
		return Info{}, ErrNoLayout
	}
	return info, nil
}

// ParseQuery parses setxkbmap -query output.
func ParseQuery(data []byte) Info {
	var info Info
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "model":
			info.Model = value
		case "layout":
			info.Layout = value
		case "variant":
			info.Variant = value
		case "options":
			info.Options = value
		}
	}
	return info
}
