package ui

import (
	"context"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/kblayout/internal/app"
	"github.com/dshills/kblayout/internal/dispatch"
)

// Run shows the status view on screen until ctx is cancelled or the user
// quits. opts configures the instance backing the view; its Dispatcher is
// replaced by the screen's loop. The screen must be initialized; Run does
// not finalize it.
func Run(ctx context.Context, screen tcell.Screen, opts app.Options) error {
	var loopOpts []dispatch.Option
	if opts.Logger != nil {
		loopOpts = append(loopOpts, dispatch.WithLogger(opts.Logger.WithComponent("ui")))
	}
	if opts.Metrics != nil {
		loopOpts = append(loopOpts, dispatch.WithObserver(opts.Metrics))
	}
	sl := dispatch.NewScreenLoop(screen, loopOpts...)
	opts.Dispatcher = sl

	inst, err := app.New(opts)
	if err != nil {
		return err
	}
	defer inst.Shutdown()

	v := newView(screen)
	refresh := func(counted bool) {
		info, err := inst.CurrentLayout(ctx)
		v.update(info, err, counted)
		v.draw()
	}
	refresh(false)

	// Runs on the screen loop.
	if err := inst.OnDidChangeKeyboardLayout(func() { refresh(true) }); err != nil {
		opts.Logger.Warn("layout change notifications unavailable: %v", err)
	}

	return sl.Run(ctx, func(ev tcell.Event) bool {
		switch ev := ev.(type) {
		case *tcell.EventResize:
			screen.Sync()
			v.draw()
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyEscape, ev.Key() == tcell.KeyCtrlC:
				return false
			case ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
				return false
			case ev.Key() == tcell.KeyRune && ev.Rune() == 'r':
				refresh(false)
			}
		}
		return true
	})
}
