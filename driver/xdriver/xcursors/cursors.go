package xcursors

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xcursor"
	"github.com/pkg/errors"
)

// https://tronche.com/gui/x/xlib/appendix/b/
// https://godoc.org/github.com/BurntSushi/xgbutil/xcursor

// Cursors shown while dragging.
type Cursor int

const (
	Default Cursor = iota
	NoDrop
	Copy
	Move
	Link
)

func (c Cursor) String() string {
	switch c {
	case Default:
		return "default"
	case NoDrop:
		return "nodrop"
	case Copy:
		return "copy"
	case Move:
		return "move"
	case Link:
		return "link"
	}
	return "unknown"
}

// Glyph of the x cursor font.
func (c Cursor) Glyph() uint16 {
	switch c {
	case NoDrop:
		return xcursor.Circle
	case Copy:
		return xcursor.Plus
	case Move:
		return xcursor.Fleur
	case Link:
		return xcursor.Hand2
	}
	return xcursor.LeftPtr
}

//----------

// Lazily created font cursors.
type Cursors struct {
	xu *xgbutil.XUtil
	m  map[Cursor]xproto.Cursor
}

func NewCursors(xu *xgbutil.XUtil) *Cursors {
	return &Cursors{xu: xu, m: map[Cursor]xproto.Cursor{}}
}

func (cs *Cursors) Cursor(c Cursor) (xproto.Cursor, error) {
	if xc, ok := cs.m[c]; ok {
		return xc, nil
	}
	xc, err := xcursor.CreateCursor(cs.xu, c.Glyph())
	if err != nil {
		return 0, errors.Wrapf(err, "cursor %v", c)
	}
	cs.m[c] = xc
	return xc, nil
}

func (cs *Cursors) Free() {
	for c, xc := range cs.m {
		_ = xproto.FreeCursor(cs.xu.Conn(), xc)
		delete(cs.m, c)
	}
}
