// Package layout reads the active keyboard layout configuration.
//
// Readers are stateless synchronous queries; they are used to answer
// "what is the layout now" and by platform sources to tell real layout
// changes apart from unrelated writes to the same files.
package layout

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Info describes an XKB keyboard configuration.
type Info struct {
	Model   string `json:"model,omitempty"`
	Layout  string `json:"layout,omitempty"`
	Variant string `json:"variant,omitempty"`
	Options string `json:"options,omitempty"`
}

// Reader returns the current keyboard configuration.
type Reader interface {
	Read(ctx context.Context) (Info, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) (Info, error)

// Read calls f(ctx).
func (f ReaderFunc) Read(ctx context.Context) (Info, error) {
	return f(ctx)
}

// IsZero reports whether no field is set.
func (i Info) IsZero() bool {
	return i == Info{}
}

// Layouts returns the configured layouts in group order.
func (i Info) Layouts() []string {
	return splitList(i.Layout)
}

// Variants returns the per-group variants; entries may be empty.
func (i Info) Variants() []string {
	if i.Variant == "" {
		return nil
	}
	return strings.Split(i.Variant, ",")
}

// Primary returns the first layout group, or "".
func (i Info) Primary() string {
	l := i.Layouts()
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// isoModels lists XKB models with the extra key left of Z.
var isoModels = map[string]bool{
	"pc102":         true,
	"pc105":         true,
	"abnt2":         true,
	"jp106":         true,
	"macintosh_iso": true,
}

// IsISO reports whether the keyboard model is an ISO (105-key style)
// layout. Unknown models are reported as ANSI.
func (i Info) IsISO() bool {
	m := strings.ToLower(i.Model)
	if isoModels[m] {
		return true
	}
	return strings.HasPrefix(m, "pc105") || strings.HasPrefix(m, "pc102")
}

// DisplayName returns a human readable name for the primary layout,
// e.g. "Germany (nodeadkeys)". Layout codes that are not regions are
// returned unchanged.
func (i Info) DisplayName() string {
	code := i.Primary()
	if code == "" {
		return ""
	}

	name := code
	if region, err := language.ParseRegion(strings.ToUpper(code)); err == nil {
		if n := display.English.Regions().Name(region); n != "" {
			name = n
		}
	}

	if v := i.Variants(); len(v) > 0 && v[0] != "" {
		name = fmt.Sprintf("%s (%s)", name, v[0])
	}
	return name
}

// String returns "layout(variant)" groups joined by commas.
func (i Info) String() string {
	layouts := i.Layouts()
	variants := i.Variants()
	parts := make([]string, len(layouts))
	for n, l := range layouts {
		if n < len(variants) && variants[n] != "" {
			parts[n] = l + "(" + variants[n] + ")"
		} else {
			parts[n] = l
		}
	}
	return strings.Join(parts, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
