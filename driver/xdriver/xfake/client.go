package xfake

import (
	"image"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xcursors"
	"github.com/jmigpin/xdnd/driver/xdriver/xutil"
)

// Connection to the fake server. Requests are synchronous, events are queued until PollEvent.
type Client struct {
	srv    *Server
	notify chan struct{}

	// guarded by srv.mu
	queue   []xgb.Event
	closed  bool
	grabWin xproto.Window
	cursors []xcursors.Cursor
}

func (c *Client) Server() *Server {
	return c.srv
}

func (c *Client) CreateWindow(parent xproto.Window, r image.Rectangle) (xproto.Window, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	pw, err := c.srv.window(parent)
	if err != nil {
		return 0, err
	}
	c.srv.nextWin++
	w := &window{
		id:     c.srv.nextWin,
		parent: pw,
		rect:   r,
		props:  map[xproto.Atom]*property{},
		owner:  c,
	}
	pw.children = append(pw.children, w)
	c.srv.wins[w.id] = w
	return w.id, nil
}

// Property change events of win are queued to its owner (same as selecting PropertyChangeMask).
func (c *Client) SelectPropertyChange(win xproto.Window) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	w, err := c.srv.window(win)
	if err != nil {
		return err
	}
	w.propNotify = true
	return nil
}

func (c *Client) Close() {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.closed = true
	if c.srv.grab == c {
		c.srv.grab = nil
	}
	c.wake()
}

// Cursors set so far.
func (c *Client) Cursors() []xcursors.Cursor {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return append([]xcursors.Cursor(nil), c.cursors...)
}

//----------

func (c *Client) Root() xproto.Window {
	return c.srv.root.id
}

func (c *Client) InternAtom(name string) (xproto.Atom, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if a, ok := c.srv.atoms[name]; ok {
		return a, nil
	}
	c.srv.nextAtom++
	a := c.srv.nextAtom
	c.srv.atoms[name] = a
	c.srv.names[a] = name
	return a, nil
}

func (c *Client) AtomName(a xproto.Atom) (string, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	name, ok := c.srv.names[a]
	if !ok {
		return "", &Error{Name: "BadAtom", Value: uint32(a)}
	}
	return name, nil
}

func (c *Client) GetProperty(win xproto.Window, prop xproto.Atom, del bool, offset, length uint32) (*xproto.GetPropertyReply, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	w, err := c.srv.window(win)
	if err != nil {
		return nil, err
	}
	p, ok := w.props[prop]
	if !ok {
		return &xproto.GetPropertyReply{Type: xproto.AtomNone}, nil
	}
	n := len(p.data)
	i := 4 * int(offset)
	if i > n {
		return nil, &Error{Name: "BadValue", Value: offset}
	}
	l := n - i
	if l > 4*int(length) {
		l = 4 * int(length)
	}
	after := n - (i + l)
	value := append([]byte(nil), p.data[i:i+l]...)
	r := &xproto.GetPropertyReply{
		Format:     p.format,
		Type:       p.typ,
		BytesAfter: uint32(after),
		ValueLen:   uint32(l / int(p.format/8)),
		Value:      value,
	}
	if del && after == 0 {
		delete(w.props, prop)
		c.srv.propertyChanged(w, prop, xproto.PropertyDelete)
	}
	return r, nil
}

func (c *Client) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	w, err := c.srv.window(win)
	if err != nil {
		return err
	}
	switch format {
	case 8, 16, 32:
	default:
		return &Error{Name: "BadValue", Value: uint32(format)}
	}
	if len(data)%int(format/8) != 0 {
		return &Error{Name: "BadLength", Value: uint32(len(data))}
	}
	w.props[prop] = &property{typ: typ, format: format, data: append([]byte(nil), data...)}
	c.srv.propertyChanged(w, prop, xproto.PropertyNewValue)
	return nil
}

func (c *Client) DeleteProperty(win xproto.Window, prop xproto.Atom) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	w, err := c.srv.window(win)
	if err != nil {
		return err
	}
	if _, ok := w.props[prop]; ok {
		delete(w.props, prop)
		c.srv.propertyChanged(w, prop, xproto.PropertyDelete)
	}
	return nil
}

func (c *Client) SetSelectionOwner(owner xproto.Window, selection xproto.Atom, t xproto.Timestamp) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if owner != xproto.WindowNone {
		if _, err := c.srv.window(owner); err != nil {
			return err
		}
	}
	if c.srv.refuseSelection {
		return nil
	}
	c.srv.owners[selection] = owner
	return nil
}

func (c *Client) SelectionOwner(selection xproto.Atom) (xproto.Window, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.owners[selection], nil
}

func (c *Client) ConvertSelection(requestor xproto.Window, selection, target, prop xproto.Atom, t xproto.Timestamp) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if _, err := c.srv.window(requestor); err != nil {
		return err
	}
	owner := c.srv.owners[selection]
	if owner == xproto.WindowNone {
		ev := xproto.SelectionNotifyEvent{
			Time:      t,
			Requestor: requestor,
			Selection: selection,
			Target:    target,
			Property:  xproto.AtomNone,
		}
		return c.srv.deliver(requestor, ev)
	}
	ev := xproto.SelectionRequestEvent{
		Time:      t,
		Owner:     owner,
		Requestor: requestor,
		Selection: selection,
		Target:    target,
		Property:  prop,
	}
	return c.srv.deliver(owner, ev)
}

func (c *Client) SendEvent(dest xproto.Window, ev xgb.Event) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if cm, ok := ev.(xproto.ClientMessageEvent); ok {
		m := Message{
			Dest:   dest,
			Window: cm.Window,
			Type:   c.srv.names[cm.Type],
			Data:   append([]uint32(nil), cm.Data.Data32...),
		}
		c.srv.sent = append(c.srv.sent, m)
	}
	return c.srv.deliver(dest, ev)
}

func (c *Client) QueryPointer(win xproto.Window) (*xproto.QueryPointerReply, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	w, err := c.srv.window(win)
	if err != nil {
		return nil, err
	}
	p := c.srv.pointer.Sub(w.abs())
	var child xproto.Window
	if u := w.childAt(p); u != nil {
		child = u.id
	}
	return &xproto.QueryPointerReply{
		SameScreen: true,
		Root:       c.srv.root.id,
		Child:      child,
		RootX:      int16(c.srv.pointer.X),
		RootY:      int16(c.srv.pointer.Y),
		WinX:       int16(p.X),
		WinY:       int16(p.Y),
		Mask:       c.srv.state,
	}, nil
}

func (c *Client) TranslateCoordinates(src, dst xproto.Window, x, y int16) (*xproto.TranslateCoordinatesReply, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	sw, err := c.srv.window(src)
	if err != nil {
		return nil, err
	}
	dw, err := c.srv.window(dst)
	if err != nil {
		return nil, err
	}
	p := image.Point{int(x), int(y)}.Add(sw.abs()).Sub(dw.abs())
	var child xproto.Window
	if u := dw.childAt(p); u != nil {
		child = u.id
	}
	return &xproto.TranslateCoordinatesReply{
		SameScreen: true,
		Child:      child,
		DstX:       int16(p.X),
		DstY:       int16(p.Y),
	}, nil
}

func (c *Client) Grab(win xproto.Window) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if _, err := c.srv.window(win); err != nil {
		return err
	}
	if c.srv.grab != nil && c.srv.grab != c {
		return &Error{Name: "AlreadyGrabbed", Value: uint32(win)}
	}
	c.srv.grab = c
	c.grabWin = win
	return nil
}

func (c *Client) Ungrab() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.srv.grab == c {
		c.srv.grab = nil
		c.grabWin = xproto.WindowNone
	}
	return nil
}

func (c *Client) SetCursor(cur xcursors.Cursor) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.cursors = append(c.cursors, cur)
	return nil
}

func (c *Client) PollEvent(timeout time.Duration) (xgb.Event, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		c.srv.mu.Lock()
		if c.closed {
			c.srv.mu.Unlock()
			return nil, xutil.ErrDisplayClosed
		}
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.srv.mu.Unlock()
			return ev, nil
		}
		c.srv.mu.Unlock()

		select {
		case <-c.notify:
		case <-timer:
			return nil, nil
		}
	}
}

//----------

// Needs the lock.
func (c *Client) push(ev xgb.Event) {
	if c.closed {
		return
	}
	c.queue = append(c.queue, ev)
	c.wake()
}

func (c *Client) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
