package dragndrop

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/pkg/errors"
)

// Selection based transfer of the dragged data (XdndSelection).
type Transfer struct {
	dnd *Dnd
}

// Issues a conversion request for each type with a registered handler (one per handler). Replies arrive later as selection notify events. Returns the number of requests issued.
func (t *Transfer) RequestTypes(win xproto.Window, types []xproto.Atom, time xproto.Timestamp, pt *PendingTransfer) int {
	seen := map[*TypeHandler]bool{}
	n := 0
	for _, typ := range types {
		th, ok := t.dnd.reg.ResolveAtom(typ)
		if !ok || seen[th] {
			continue
		}
		seen[th] = true
		// use the type as the property name to keep concurrent conversions apart
		err := t.dnd.disp.ConvertSelection(win, t.dnd.atoms.XdndSelection, typ, typ, time)
		if err != nil {
			t.dnd.logf("dnd: convert selection: %v", err)
			continue
		}
		pt.add(typ)
		n++
	}
	return n
}

// Decodes the arrived bytes into data. Types that were not requested are skipped. Returns false if the type was not pending.
func (t *Transfer) OnTransferArrived(typ xproto.Atom, raw []byte, data *Data, pt *PendingTransfer) bool {
	if !pt.done(typ) {
		return false
	}
	th, ok := t.dnd.reg.ResolveAtom(typ)
	if !ok {
		return true
	}
	v, err := th.Codec.Decode(raw)
	if err != nil {
		t.dnd.logf("dnd: decode %v: %v", th.Name, err)
		return true
	}
	data.Set(th.Name, v)
	return true
}

// Reads the property in chunks until the server reports no bytes remaining. Returns nil on an empty or missing property.
func (t *Transfer) ReadChunked(win xproto.Window, prop xproto.Atom, delete bool) ([]byte, error) {
	b, _, err := t.readProperty(win, prop, delete)
	return b, err
}

// Same as ReadChunked, also returning the property type (AtomNone if missing).
func (t *Transfer) readProperty(win xproto.Window, prop xproto.Atom, delete bool) ([]byte, xproto.Atom, error) {
	chunk := uint32(t.dnd.Opt.ChunkSize / 4)
	if chunk == 0 {
		chunk = 1
	}
	get := func(offset uint32) (*xproto.GetPropertyReply, error) {
		r, err := t.dnd.disp.GetProperty(win, prop, false, offset, chunk)
		return r, errors.Wrap(err, "read property")
	}
	r, err := get(0)
	if err != nil {
		return nil, xproto.AtomNone, err
	}
	typ := r.Type
	total := len(r.Value) + int(r.BytesAfter)
	if total == 0 {
		if delete && r.Type != xproto.AtomNone {
			_ = t.dnd.disp.DeleteProperty(win, prop)
		}
		return nil, typ, nil
	}

	buf := make([]byte, 0, total)
	grown := false
	for {
		if len(buf)+len(r.Value) > cap(buf) {
			// property changed while reading: allow one retry with a bigger buffer
			if grown {
				return nil, typ, fmt.Errorf("read property: overflow (%d bytes)", len(buf)+len(r.Value))
			}
			grown = true
			buf2 := make([]byte, len(buf), 2*cap(buf))
			copy(buf2, buf)
			buf = buf2
			continue
		}
		buf = append(buf, r.Value...)
		if r.BytesAfter == 0 {
			break
		}
		if len(r.Value) == 0 || len(buf)%4 != 0 {
			return nil, typ, fmt.Errorf("read property: bad chunk (len=%d, after=%d)", len(r.Value), r.BytesAfter)
		}
		r, err = get(uint32(len(buf) / 4))
		if err != nil {
			return nil, typ, err
		}
	}
	if delete {
		if err := t.dnd.disp.DeleteProperty(win, prop); err != nil {
			return nil, typ, errors.Wrap(err, "delete property")
		}
	}
	return buf, typ, nil
}

// Another application is asking for the dragged data. Writes the encoded data into the requestor property and notifies it. Unregistered types are ignored.
func (t *Transfer) ServeRequest(ev *xproto.SelectionRequestEvent, payload DataObject, advertised []xproto.Atom) ([]byte, error) {
	prop := ev.Property
	if prop == xproto.AtomNone {
		// obsolete requestor
		prop = ev.Target
	}

	// testing: $ xclip -o -target TARGETS -selection XdndSelection
	if ev.Target == t.dnd.atoms.Targets {
		b := atomsBytes(append([]xproto.Atom{t.dnd.atoms.Targets}, advertised...))
		err := t.dnd.disp.ChangeProperty(ev.Requestor, prop, xproto.AtomAtom, 32, b)
		if err != nil {
			return nil, errors.Wrap(err, "targets")
		}
		return b, t.notify(ev, prop)
	}

	th, ok := t.dnd.reg.ResolveAtom(ev.Target)
	if !ok {
		return nil, nil
	}
	v, ok := t.payloadValue(payload, th)
	if !ok {
		return nil, nil
	}
	b, err := th.Codec.Encode(v)
	if err != nil {
		// refuse the conversion
		_ = t.notify(ev, xproto.AtomNone)
		return nil, errors.Wrapf(err, "encode %v", th.Name)
	}
	// incremental transfers are not served: refuse what doesn't fit in one request
	if limit := t.dnd.Opt.MaxPropertySize; limit > 0 && len(b) > limit {
		_ = t.notify(ev, xproto.AtomNone)
		return nil, fmt.Errorf("%v: %d bytes exceeds the max property size (%d)", th.Name, len(b), limit)
	}
	// change property on the requestor
	if err := t.dnd.disp.ChangeProperty(ev.Requestor, prop, ev.Target, 8, b); err != nil {
		return nil, errors.Wrap(err, "change property")
	}
	return b, t.notify(ev, prop)
}

// Reply type accepted for a requested type: the same atom or another atom of the same handler.
func (t *Transfer) sameType(requested, got xproto.Atom) bool {
	if got == requested {
		return true
	}
	th, ok := t.dnd.reg.ResolveAtom(requested)
	if !ok {
		return false
	}
	th2, ok := t.dnd.reg.ResolveAtom(got)
	return ok && th2 == th
}

func (t *Transfer) notify(ev *xproto.SelectionRequestEvent, prop xproto.Atom) error {
	sne := xproto.SelectionNotifyEvent{
		Time:      ev.Time,
		Requestor: ev.Requestor,
		Selection: ev.Selection,
		Target:    ev.Target,
		Property:  prop,
	}
	err := t.dnd.disp.SendEvent(ev.Requestor, sne)
	return errors.Wrap(err, "selection notify")
}

func (t *Transfer) payloadValue(payload DataObject, th *TypeHandler) (interface{}, bool) {
	for _, f := range payload.Formats() {
		th2, ok := t.dnd.reg.ResolveName(f)
		if ok && th2 == th {
			return payload.Get(f)
		}
	}
	return nil, false
}

// Atoms to advertise for a payload, in the payload formats order.
func (t *Transfer) advertisedTypes(payload DataObject) []xproto.Atom {
	seen := map[xproto.Atom]bool{}
	u := []xproto.Atom{}
	for _, f := range payload.Formats() {
		th, ok := t.dnd.reg.ResolveName(f)
		if !ok {
			t.dnd.logf("dnd: unregistered payload format: %q", f)
			continue
		}
		for _, a := range th.Atoms() {
			if !seen[a] {
				seen[a] = true
				u = append(u, a)
			}
		}
	}
	return u
}

//----------

// Outstanding conversion requests of one enter.
type PendingTransfer struct {
	requested        map[xproto.Atom]bool
	incr             map[xproto.Atom]*incrRead // by property
	positionReceived bool
}

type incrRead struct {
	typ xproto.Atom
	buf []byte
}

func (pt *PendingTransfer) Count() int {
	return len(pt.requested)
}

func (pt *PendingTransfer) PositionReceived() bool {
	return pt.positionReceived
}

func (pt *PendingTransfer) Reset() {
	pt.requested = nil
	pt.incr = nil
	pt.positionReceived = false
}

// Number of incremental transfers in progress.
func (pt *PendingTransfer) Incremental() int {
	return len(pt.incr)
}

// Returns false if the type was not pending.
func (pt *PendingTransfer) startIncr(prop, typ xproto.Atom) bool {
	if !pt.requested[typ] {
		return false
	}
	if pt.incr == nil {
		pt.incr = map[xproto.Atom]*incrRead{}
	}
	pt.incr[prop] = &incrRead{typ: typ}
	return true
}

func (pt *PendingTransfer) endIncr(prop xproto.Atom) {
	delete(pt.incr, prop)
}

func (pt *PendingTransfer) add(typ xproto.Atom) {
	if pt.requested == nil {
		pt.requested = map[xproto.Atom]bool{}
	}
	pt.requested[typ] = true
}

// Returns false if the type was not pending.
func (pt *PendingTransfer) done(typ xproto.Atom) bool {
	if !pt.requested[typ] {
		return false
	}
	delete(pt.requested, typ)
	return true
}

func (pt *PendingTransfer) ready() bool {
	return pt.Count() == 0 && pt.positionReceived
}
