package app

import (
	"strings"

	"github.com/alanyoungcy/polystrat/internal/server"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

// engine is the set of running loops. It implements server.Runtime.
type engine struct {
	loops []*strategy.Loop
}

var _ server.Runtime = (*engine)(nil)

func (e *engine) States() []strategy.State {
	out := make([]strategy.State, len(e.loops))
	for i, l := range e.loops {
		out[i] = l.State()
	}
	return out
}

func (e *engine) Halt(name string) bool {
	l := e.find(name)
	if l == nil {
		return false
	}
	l.Halt()
	return true
}

func (e *engine) Resume(name string) bool {
	l := e.find(name)
	if l == nil {
		return false
	}
	l.Resume()
	return true
}

// snapshot feeds the websocket hub's initial frames.
func (e *engine) snapshot() map[string]any {
	out := make(map[string]any, len(e.loops))
	for _, l := range e.loops {
		out[l.Name()] = l.State()
	}
	return out
}

func (e *engine) find(name string) *strategy.Loop {
	for _, l := range e.loops {
		if strings.EqualFold(l.Name(), name) {
			return l
		}
	}
	return nil
}
