// Package ui is a terminal status view of the keyboard layout.
//
// The view is itself a consumer runtime: its layout change callback is
// delivered on the tcell event loop through a dispatch.ScreenLoop, so
// drawing never races with input handling.
package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/kblayout/internal/layout"
)

var (
	styleDefault = tcell.StyleDefault
	styleTitle   = tcell.StyleDefault.Bold(true)
	styleLabel   = tcell.StyleDefault.Dim(true)
	styleValue   = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// status is what the view shows. It is only touched on the UI goroutine.
type status struct {
	info    layout.Info
	err     error
	changes int
	changed time.Time
}

// view draws a status onto a screen.
type view struct {
	screen tcell.Screen
	now    func() time.Time
	st     status
}

func newView(screen tcell.Screen) *view {
	return &view{screen: screen, now: time.Now}
}

// update records a layout reading. counted marks it as a change event.
func (v *view) update(info layout.Info, err error, counted bool) {
	v.st.info = info
	v.st.err = err
	if counted {
		v.st.changes++
		v.st.changed = v.now()
	}
}

func (v *view) draw() {
	s := v.screen
	s.Clear()

	y := 1
	drawText(s, 2, y, styleTitle, "kblayout")
	y += 2

	if v.st.err != nil {
		drawText(s, 2, y, styleError, v.st.err.Error())
		y += 2
	} else {
		kind := "ANSI"
		if v.st.info.IsISO() {
			kind = "ISO"
		}
		rows := [][2]string{
			{"Layout", v.st.info.DisplayName()},
			{"Groups", v.st.info.String()},
			{"Model", v.st.info.Model},
			{"Keyboard", kind},
			{"Options", v.st.info.Options},
		}
		for _, r := range rows {
			if r[1] == "" {
				continue
			}
			drawText(s, 2, y, styleLabel, r[0])
			drawText(s, 14, y, styleValue, r[1])
			y++
		}
		y++
	}

	changes := fmt.Sprintf("%d", v.st.changes)
	if !v.st.changed.IsZero() {
		changes += " (last " + v.st.changed.Format(time.TimeOnly) + ")"
	}
	drawText(s, 2, y, styleLabel, "Changes")
	drawText(s, 14, y, styleDefault, changes)

	_, h := s.Size()
	drawText(s, 2, h-1, styleLabel, "q quit  r refresh")
	s.Show()
}

// drawText draws str at (x, y) one grapheme cluster at a time and
// returns the x after the last cell written.
func drawText(s tcell.Screen, x, y int, style tcell.Style, str string) int {
	w, _ := s.Size()
	g := uniseg.NewGraphemes(str)
	for g.Next() {
		if x >= w {
			break
		}
		runes := g.Runes()
		s.SetContent(x, y, runes[0], runes[1:], style)
		x += max(g.Width(), 1)
	}
	return x
}
