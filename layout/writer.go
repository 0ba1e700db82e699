package layout

import (
	"sync"

	"github.com/jroimartin/gocui"
)

// ViewWriter appends log lines to the log view. Lines written before a gui is
// attached are held and flushed on Attach.
type ViewWriter struct {
	m       sync.Mutex
	g       *gocui.Gui
	pending []byte
}

func NewViewWriter() *ViewWriter {
	return &ViewWriter{}
}

func (w *ViewWriter) Write(p []byte) (int, error) {
	w.m.Lock()
	defer w.m.Unlock()
	if w.g == nil {
		w.pending = append(w.pending, p...)
		return len(p), nil
	}
	w.show(append([]byte(nil), p...))
	return len(p), nil
}

// Sync is a no-op, the gui flushes on redraw.
func (w *ViewWriter) Sync() error {
	return nil
}

// Attach starts writing to g.
func (w *ViewWriter) Attach(g *gocui.Gui) {
	w.m.Lock()
	defer w.m.Unlock()
	w.g = g
	if len(w.pending) > 0 {
		w.show(w.pending)
		w.pending = nil
	}
}

func (w *ViewWriter) show(p []byte) {
	w.g.Update(func(g *gocui.Gui) error {
		v, err := g.View(LOGGER_VIEW)
		if err != nil {
			// Not laid out yet.
			return nil
		}
		_, err = v.Write(p)
		return err
	})
}
