package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kblayout/internal/app"
	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
	"github.com/dshills/kblayout/internal/platform"
)

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("")
	require.NoError(t, s.Init())
	s.SetSize(60, 15)
	t.Cleanup(s.Fini)
	return s
}

// screenText returns the screen contents, one line per row.
func screenText(s tcell.SimulationScreen) string {
	cells, w, h := s.GetContents()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := cells[y*w+x]
			if len(c.Runes) == 0 {
				b.WriteByte(' ')
				continue
			}
			b.WriteString(string(c.Runes))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestRun_ShowsLayoutAndChanges(t *testing.T) {
	screen := newScreen(t)
	src := platform.NewManualSource()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), screen, app.Options{
			Logger: logging.Nop(),
			Source: src,
			Reader: layout.ReaderFunc(func(context.Context) (layout.Info, error) {
				return layout.Info{Model: "pc105", Layout: "de", Variant: "nodeadkeys"}, nil
			}),
		})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(screenText(screen), "Germany (nodeadkeys)")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, screenText(screen), "ISO")
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	src.Fire()
	require.Eventually(t, func() bool {
		return strings.Contains(screenText(screen), "1 (last")
	}, 2*time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("view did not quit")
	}
	assert.Equal(t, 0, src.Subscribers())
}

func TestRun_ShowsReadError(t *testing.T) {
	screen := newScreen(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, screen, app.Options{
			Logger: logging.Nop(),
			Source: platform.NewManualSource(),
			Reader: layout.ReaderFunc(func(context.Context) (layout.Info, error) {
				return layout.Info{}, errors.New("no keyboard configuration")
			}),
		})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(screenText(screen), "no keyboard configuration")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop on cancel")
	}
}

func TestDrawText_ClipsAtScreenEdge(t *testing.T) {
	screen := newScreen(t)
	x := drawText(screen, 55, 0, styleDefault, "abcdefghij")
	assert.Equal(t, 60, x)
}
