// Package layout is the terminal console shared by the full node and the
// wallet: a manual, past commands, a log view and an input line.
package layout

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"
)

const (
	INPUT_VIEW  = "input"
	PAST_VIEW   = "pastcommand"
	LOGGER_VIEW = "logger"
	MANUAL_VIEW = "manual"
)

// Submit parses and runs one typed line. A returned error is shown under the
// line in the past command view.
type Submit func(line string) error

// PastCmd is the ViewManager that logs past command.
type PastCmd struct {
	name string
	h    *history
}

// Input box for command.
type Input struct {
	name   string
	h      *history
	submit Submit
}

type Logger struct {
	name string
}

type Manual struct {
	name  string
	usage string
}

// Lines typed since the past command view last drew.
type history struct {
	lines []string
	m     sync.Mutex
}

func (h *history) push(line string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.lines = append(h.lines, line)
}

func (h *history) drain() []string {
	h.m.Lock()
	defer h.m.Unlock()
	res := h.lines
	h.lines = nil
	return res
}

// record runs submit on the buffer of the input view and returns what the
// past command view shows for it. Empty lines are skipped.
func record(buffer string, submit Submit) (string, bool) {
	// Remove \n from string.
	s := strings.TrimSpace(strings.Replace(buffer, "\n", "", -1))
	if s == "" {
		return "", false
	}
	if err := submit(s); err != nil {
		return "> " + s + "\n" + err.Error(), true
	}
	return "> " + s, true
}

func (pc *PastCmd) Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// Bottom left corner.
	v, err := g.SetView(pc.name, 1, maxY*2/3, maxX/3, maxY-6)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "history"
	v.Autoscroll = true
	v.Wrap = true
	for _, line := range pc.h.drain() {
		fmt.Fprintln(v, line)
	}
	return nil
}

func (i *Input) Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// Bottom, full width.
	v, err := g.SetView(i.name, 1, maxY-5, maxX-1, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Wrap = true
	v.Autoscroll = true
	v.Editor = i
	v.Editable = true
	return nil
}

func (l *Logger) Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// Right side.
	v, err := g.SetView(l.name, maxX/3+1, 1, maxX-1, maxY-6)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "log"
	v.Autoscroll = true
	v.Wrap = true
	return nil
}

func (m *Manual) Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// Top left corner.
	v, err := g.SetView(m.name, 1, 1, maxX/3, maxY*2/3-1)
	if err == gocui.ErrUnknownView {
		v.Title = "usage"
		v.Wrap = true
		fmt.Fprintln(v, m.usage)
		return nil
	}
	return err
}

func (i *Input) Edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
	switch {
	case key == gocui.KeyEnter:
		if line, ok := record(v.Buffer(), i.submit); ok {
			i.h.push(line)
		}
		// Reset cursor.
		v.Clear()
		v.SetOrigin(0, 0)
		v.SetCursor(0, 0)
	case ch != 0 && mod == 0:
		v.EditWrite(ch)
	case key == gocui.KeySpace:
		v.EditWrite(' ')
	case key == gocui.KeyBackspace || key == gocui.KeyBackspace2:
		v.EditDelete(true)
	}
}

func SetFocus(name string) func(g *gocui.Gui) error {
	return func(g *gocui.Gui) error {
		_, err := g.SetCurrentView(name)
		return err
	}
}

// CreateGui builds the console. Every line typed in the input view goes to
// submit; usage fills the manual view.
func CreateGui(usage string, submit Submit) (*gocui.Gui, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}
	g.Cursor = true

	h := &history{}
	pc := &PastCmd{name: PAST_VIEW, h: h}
	input := &Input{name: INPUT_VIEW, h: h, submit: submit}
	l := &Logger{name: LOGGER_VIEW}
	m := &Manual{name: MANUAL_VIEW, usage: usage}
	focus := gocui.ManagerFunc(SetFocus(INPUT_VIEW))
	g.SetManager(pc, input, l, m, focus)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// Run blocks in the gui main loop until ctrl-c, then restores the terminal.
func Run(g *gocui.Gui) error {
	defer g.Close()
	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}
