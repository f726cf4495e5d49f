package layout

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultPaths are the files consulted by FileReader, in order.
var DefaultPaths = []string{
	"/etc/default/keyboard",
	"/etc/vconsole.conf",
	"/etc/X11/xorg.conf.d/00-keyboard.conf",
}

// FileReader reads the layout from the first existing configuration file.
//
// Two formats are understood: shell-style assignments as written by
// Debian's keyboard-configuration and systemd-localed
// (XKBLAYOUT="us,de"), and xorg.conf InputClass options
// (Option "XkbLayout" "us,de").
type FileReader struct {
	Paths []string
}

// NewFileReader returns a reader over paths, or DefaultPaths if none given.
func NewFileReader(paths ...string) *FileReader {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &FileReader{Paths: paths}
}

// Read implements Reader.
func (r *FileReader) Read(ctx context.Context) (Info, error) {
	for _, path := range r.Paths {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Info{}, fmt.Errorf("reading %s: %w", path, err)
		}
		info := Parse(data)
		if info.Layout == "" {
			continue
		}
		return info, nil
	}
	return Info{}, ErrNotConfigured
}

// Parse extracts XKB settings from configuration file contents.
func Parse(data []byte) Info {
	var info Info
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := parseAssignment(line)
		if !ok {
			key, value, ok = parseXorgOption(line)
		}
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "xkbmodel":
			info.Model = value
		case "xkblayout", "keymap_layout":
			info.Layout = value
		case "xkbvariant", "keymap_variant":
			info.Variant = value
		case "xkboptions", "keymap_options":
			info.Options = value
		}
	}
	return info
}

// parseAssignment handles KEY=value, KEY="value" and KEY='value'.
func parseAssignment(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
	if key == "" || strings.ContainsAny(key, " \t\"") {
		return "", "", false
	}
	return key, unquote(strings.TrimSpace(value)), true
}

// parseXorgOption handles: Option "XkbLayout" "us".
func parseXorgOption(line string) (string, string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || !strings.EqualFold(fields[0], "option") {
		return "", "", false
	}
	return unquote(fields[1]), unquote(strings.Join(fields[2:], " ")), true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
