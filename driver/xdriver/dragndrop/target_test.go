package dragndrop

import (
	"image"
	"testing"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xfake"
)

// Drop target driven step by step: the source side is a Dnd with a hand made session that only serves the data.
type targetEnv struct {
	t        *testing.T
	srv      *xfake.Server
	srcC     *xfake.Client
	dstC     *xfake.Client
	src, dst *Dnd
	srcWin   xproto.Window
	dstWin   xproto.Window
}

func newTargetEnv(t *testing.T, payload interface{}) *targetEnv {
	srv := xfake.NewServer(800, 600)
	env := &targetEnv{t: t, srv: srv, srcC: srv.NewClient(), dstC: srv.NewClient()}
	env.src = newTestDnd(t, env.srcC)
	env.dst = newTestDnd(t, env.dstC)
	env.srcWin = newTestWindow(t, env.srcC, srv.Root(), image.Rect(0, 0, 100, 100))
	env.dstWin = newTestWindow(t, env.dstC, srv.Root(), image.Rect(200, 0, 600, 400))
	if err := env.dst.SetAware(env.dstWin); err != nil {
		t.Fatal(err)
	}

	data := payloadData(payload)
	env.src.source.session = &DragSession{
		Window:  env.srcWin,
		Data:    data,
		Allowed: EffectCopy | EffectMove,
		Types:   env.src.transfer.advertisedTypes(data),
		State:   DragEntered,
	}
	sel := env.src.atoms.XdndSelection
	if err := env.srcC.SetSelectionOwner(env.srcWin, sel, xproto.TimeCurrentTime); err != nil {
		t.Fatal(err)
	}
	actions := env.src.atoms.effectAtoms(EffectCopy | EffectMove)
	if err := env.src.setAtomsProperty(env.srcWin, env.src.atoms.XdndActionList, actions); err != nil {
		t.Fatal(err)
	}
	dumpOnFailure(t, srv)
	return env
}

func (env *targetEnv) send(m Message) {
	env.t.Helper()
	if err := env.src.sendMessage(env.dstWin, env.dstWin, m); err != nil {
		env.t.Fatal(err)
	}
	drain(env.dst, env.dstC)
}

func (env *targetEnv) enter() {
	s := env.src.source.session
	env.send(&EnterMsg{Source: env.srcWin, Version: Version, MoreTypes: len(s.Types) > 3, Types: s.Types})
}

func (env *targetEnv) position(x, y int) {
	a := env.src.atoms.XdndActionCopy
	env.send(&PositionMsg{Source: env.srcWin, Point: image.Point{x, y}, Action: a})
}

// Source answers the data requests; the target reads the replies.
func (env *targetEnv) serve() {
	drain(env.src, env.srcC)
	drain(env.dst, env.dstC)
}

// Data requests queued on the source, answered by the test.
func (env *targetEnv) requests() []xproto.SelectionRequestEvent {
	u := []xproto.SelectionRequestEvent{}
	for {
		ev, err := env.srcC.PollEvent(0)
		if err != nil || ev == nil {
			return u
		}
		if sr, ok := ev.(xproto.SelectionRequestEvent); ok {
			u = append(u, sr)
		}
	}
}

// Owner side of a conversion: writes the property and notifies the requestor.
func (env *targetEnv) reply(sr xproto.SelectionRequestEvent, typ xproto.Atom, format byte, b []byte) {
	env.t.Helper()
	if err := env.srcC.ChangeProperty(sr.Requestor, sr.Property, typ, format, b); err != nil {
		env.t.Fatal(err)
	}
	sne := xproto.SelectionNotifyEvent{
		Requestor: sr.Requestor,
		Selection: sr.Selection,
		Target:    sr.Target,
		Property:  sr.Property,
	}
	if err := env.srcC.SendEvent(sr.Requestor, sne); err != nil {
		env.t.Fatal(err)
	}
	drain(env.dst, env.dstC)
}

func (env *targetEnv) statuses() []*StatusMsg {
	u := []*StatusMsg{}
	for _, m := range env.srv.Messages("XdndStatus") {
		u = append(u, parseStatusMsg(m.Data))
	}
	return u
}

//----------

func TestTargetEnterConvergence(t *testing.T) {
	for _, positionFirst := range []bool{true, false} {
		env := newTargetEnv(t, "hello")
		w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
		env.dst.SetWidget(env.dstWin, w)

		env.enter()
		if positionFirst {
			env.position(250, 50)
			if n := len(env.statuses()); n != 0 {
				t.Fatalf("position first: status before data: %v", n)
			}
			if env.dst.Target().Pending().Count() != 1 {
				t.Fatalf("pending: %v", env.dst.Target().Pending().Count())
			}
			env.serve()
		} else {
			env.serve()
			if n := len(env.statuses()); n != 0 {
				t.Fatalf("data first: status before position: %v", n)
			}
			env.position(250, 50)
		}

		if !equalStrings(w.Events(), []string{"w:enter"}) {
			t.Fatalf("positionFirst=%v: events: %v", positionFirst, w.Events())
		}
		st := env.statuses()
		if len(st) != 1 || !st[0].Accept || st[0].Action != env.dst.atoms.XdndActionCopy {
			t.Fatalf("positionFirst=%v: status: %+v", positionFirst, st)
		}
		if st[0].Target != env.dstWin || !st[0].WantPositions {
			t.Fatalf("status: %+v", st[0])
		}
		v, ok := w.LastData().Get(TypeUtf8String)
		if !ok || v != "hello" {
			t.Fatalf("data: %v %v", v, ok)
		}
		if p := env.dst.Target().State().Local; p != (image.Point{50, 50}) {
			t.Fatalf("local point: %v", p)
		}
	}
}

func TestTargetOneStatusPerPosition(t *testing.T) {
	env := newTargetEnv(t, "hello")
	w := &testWidget{name: "w", allowDrop: true, effect: EffectMove}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.position(250, 50)
	env.serve()
	env.serve() // nothing more to read
	if n := len(env.statuses()); n != 1 {
		t.Fatalf("statuses: %v", n)
	}
	env.position(260, 50)
	env.position(270, 50)
	st := env.statuses()
	if len(st) != 3 {
		t.Fatalf("statuses: %v", len(st))
	}
	if !equalStrings(w.Events(), []string{"w:enter", "w:over", "w:over"}) {
		t.Fatalf("events: %v", w.Events())
	}
	if st[2].Action != env.dst.atoms.XdndActionMove {
		t.Fatalf("action: %v", st[2].Action)
	}
}

func TestTargetDescendants(t *testing.T) {
	env := newTargetEnv(t, "hello")
	log := &eventLog{}
	a := newTestWindow(t, env.dstC, env.dstWin, image.Rect(0, 0, 100, 100))
	b := newTestWindow(t, env.dstC, env.dstWin, image.Rect(100, 0, 200, 100))
	inner := newTestWindow(t, env.dstC, a, image.Rect(10, 10, 20, 20))
	env.dst.SetWidget(env.dstWin, log.widget("top", true, EffectCopy))
	env.dst.SetWidget(a, log.widget("a", true, EffectCopy))
	env.dst.SetWidget(b, log.widget("b", true, EffectCopy))
	env.dst.SetWidget(inner, log.widget("inner", false, EffectCopy))

	env.enter()
	env.serve()
	env.position(250, 50) // a
	env.position(260, 50) // a
	if n := env.dst.Target().Pending().Count(); n != 0 {
		t.Fatalf("pending: %v", n)
	}
	env.position(350, 50) // b
	env.position(215, 15) // a/inner: not enabled, a wins
	env.position(550, 300) // toplevel

	want := []string{
		"a:enter", "a:over",
		"a:leave", "b:enter",
		"b:leave", "a:enter",
		"a:leave", "top:enter",
	}
	if !equalStrings(log.Events(), want) {
		t.Fatalf("events:\n%v\n%v", log.Events(), want)
	}
	if n := len(env.statuses()); n != 5 {
		t.Fatalf("statuses: %v", n)
	}
}

func TestTargetInnermostWins(t *testing.T) {
	env := newTargetEnv(t, "hello")
	log := &eventLog{}
	a := newTestWindow(t, env.dstC, env.dstWin, image.Rect(0, 0, 100, 100))
	inner := newTestWindow(t, env.dstC, a, image.Rect(10, 10, 20, 20))
	env.dst.SetWidget(a, log.widget("a", true, EffectCopy))
	env.dst.SetWidget(inner, log.widget("inner", true, EffectCopy))

	env.enter()
	env.serve()
	env.position(215, 15)
	if !equalStrings(log.Events(), []string{"inner:enter"}) {
		t.Fatalf("events: %v", log.Events())
	}
	if p := env.dst.Target().State().Local; p != (image.Point{5, 5}) {
		t.Fatalf("local point: %v", p)
	}
}

func TestTargetDisallowed(t *testing.T) {
	env := newTargetEnv(t, "hello")
	w := &testWidget{name: "w", allowDrop: false, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.serve()
	env.position(250, 50)
	env.position(300, 50)
	st := env.statuses()
	if len(st) != 2 {
		t.Fatalf("statuses: %v", len(st))
	}
	for _, s := range st {
		if s.Accept || s.Action != xproto.AtomNone {
			t.Fatalf("status: %+v", s)
		}
	}
	if len(w.Events()) != 0 {
		t.Fatalf("events: %v", w.Events())
	}
}

func TestTargetEffectOutsideAllowed(t *testing.T) {
	env := newTargetEnv(t, "hello")
	w := &testWidget{name: "w", allowDrop: true, effect: EffectLink}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.serve()
	env.position(250, 50)
	st := env.statuses()
	if len(st) != 1 || st[0].Accept {
		t.Fatalf("status: %+v", st)
	}
}

func TestTargetDropWaitsForData(t *testing.T) {
	env := newTargetEnv(t, []string{"/tmp/a b.txt", "/tmp/c.txt"})
	w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.position(250, 50)
	env.send(&DropMsg{Source: env.srcWin})
	if n := len(env.srv.Messages("XdndFinished")); n != 0 {
		t.Fatalf("finished before data: %v", n)
	}
	env.serve()

	fm := env.srv.Messages("XdndFinished")
	if len(fm) != 1 {
		t.Fatalf("finished: %v", len(fm))
	}
	f := parseFinishedMsg(fm[0].Data)
	if !f.Accepted || f.Action != env.dst.atoms.XdndActionCopy || f.Target != env.dstWin {
		t.Fatalf("finished: %+v", f)
	}
	if !equalStrings(w.Events(), []string{"w:enter", "w:drop"}) {
		t.Fatalf("events: %v", w.Events())
	}
	v, ok := w.LastData().Get(TypeURIList)
	u, _ := v.([]string)
	if !ok || len(u) != 2 || u[0] != "/tmp/a b.txt" || u[1] != "/tmp/c.txt" {
		t.Fatalf("data: %#v", v)
	}
	if env.dst.Target().Phase() != TargetIdle {
		t.Fatalf("phase: %v", env.dst.Target().Phase())
	}
}

func TestTargetLeave(t *testing.T) {
	env := newTargetEnv(t, "hello")
	w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.serve()
	env.position(250, 50)
	env.send(&LeaveMsg{Source: env.srcWin})
	if !equalStrings(w.Events(), []string{"w:enter", "w:leave"}) {
		t.Fatalf("events: %v", w.Events())
	}
	if env.dst.Target().Phase() != TargetIdle || env.dst.Target().Pending().Count() != 0 {
		t.Fatal("not reset")
	}
}

func TestTargetUnexpectedSource(t *testing.T) {
	env := newTargetEnv(t, "hello")
	env.enter()
	err := env.dst.Target().OnPosition(env.dstWin, &PositionMsg{Source: 999})
	if err == nil {
		t.Fatal("expecting error")
	}
	if env.dst.Target().Pending().PositionReceived() {
		t.Fatal("position from another source was recorded")
	}
	if err := env.dst.Target().OnDrop(env.dstWin, &DropMsg{Source: env.srcWin}); err == nil {
		t.Fatal("expecting drop without position error")
	}
}

func TestTargetMoreTypes(t *testing.T) {
	data := NewData()
	data.Set(TypeHTML, "<b>x</b>")
	data.Set(TypeJSON, map[string]interface{}{"a": 1.0})
	data.Set(TypeUtf8String, "x")
	env := newTargetEnv(t, data)
	s := env.src.source.session
	if len(s.Types) <= 3 {
		t.Fatalf("types: %v", len(s.Types))
	}
	if err := env.src.setAtomsProperty(env.srcWin, env.src.atoms.XdndTypeList, s.Types); err != nil {
		t.Fatal(err)
	}
	w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	if n := len(env.dst.Target().Types()); n != len(s.Types) {
		t.Fatalf("types: %v", n)
	}
	if n := env.dst.Target().Pending().Count(); n != 3 {
		t.Fatalf("pending: %v", n)
	}
	env.serve()
	env.position(250, 50)
	got := w.LastData()
	if got == nil {
		t.Fatal("no data")
	}
	if v, _ := got.Get(TypeHTML); v != "<b>x</b>" {
		t.Fatalf("html: %v", v)
	}
	if v, _ := got.Get(TypeJSON); v.(map[string]interface{})["a"] != 1.0 {
		t.Fatalf("json: %v", v)
	}
}

func TestTargetIncrementalTransfer(t *testing.T) {
	env := newTargetEnv(t, "hello")
	if err := env.dstC.SelectPropertyChange(env.dstWin); err != nil {
		t.Fatal(err)
	}
	w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)

	env.enter()
	env.position(250, 50)
	reqs := env.requests()
	if len(reqs) != 1 {
		t.Fatalf("requests: %v", len(reqs))
	}
	sr := reqs[0]
	size := make([]byte, 4)
	xgb.Put32(size, 11)
	env.reply(sr, env.src.atoms.Incr, 32, size)

	pt := env.dst.Target().Pending()
	if pt.Count() != 1 || pt.Incremental() != 1 {
		t.Fatalf("pending: %v, incremental: %v", pt.Count(), pt.Incremental())
	}
	// the requestor deletes the INCR property to start the transfer
	if r, _ := env.srcC.GetProperty(sr.Requestor, sr.Property, false, 0, 1); r.Type != xproto.AtomNone {
		t.Fatalf("incr property not deleted: %v", r.Type)
	}

	for _, chunk := range []string{"hello ", "world", ""} {
		if len(env.statuses()) != 0 {
			t.Fatal("status before the last chunk")
		}
		if err := env.srcC.ChangeProperty(sr.Requestor, sr.Property, sr.Target, 8, []byte(chunk)); err != nil {
			t.Fatal(err)
		}
		drain(env.dst, env.dstC)
	}
	if pt.Count() != 0 || pt.Incremental() != 0 {
		t.Fatalf("pending: %v, incremental: %v", pt.Count(), pt.Incremental())
	}
	st := env.statuses()
	if len(st) != 1 || !st[0].Accept {
		t.Fatalf("status: %+v", st)
	}
	v, ok := w.LastData().Get(TypeUtf8String)
	if !ok || v != "hello world" {
		t.Fatalf("data: %q %v", v, ok)
	}
}

func TestTargetUnexpectedReplyType(t *testing.T) {
	for _, incr := range []bool{false, true} {
		env := newTargetEnv(t, "hello")
		if err := env.dstC.SelectPropertyChange(env.dstWin); err != nil {
			t.Fatal(err)
		}
		w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
		env.dst.SetWidget(env.dstWin, w)
		png, _ := env.srcC.InternAtom("image/png")

		env.enter()
		env.position(250, 50)
		reqs := env.requests()
		if len(reqs) != 1 {
			t.Fatalf("requests: %v", len(reqs))
		}
		sr := reqs[0]
		if incr {
			env.reply(sr, env.src.atoms.Incr, 32, make([]byte, 4))
			if err := env.srcC.ChangeProperty(sr.Requestor, sr.Property, png, 8, []byte("\x89PNG")); err != nil {
				t.Fatal(err)
			}
			drain(env.dst, env.dstC)
		} else {
			env.reply(sr, png, 8, []byte("\x89PNG"))
		}

		pt := env.dst.Target().Pending()
		if pt.Count() != 0 || pt.Incremental() != 0 {
			t.Fatalf("incr=%v: pending: %v, incremental: %v", incr, pt.Count(), pt.Incremental())
		}
		// handled as a refused conversion: status sent, no data
		if n := len(env.statuses()); n != 1 {
			t.Fatalf("incr=%v: statuses: %v", incr, n)
		}
		if _, ok := w.LastData().Get(TypeUtf8String); ok {
			t.Fatalf("incr=%v: data decoded from the wrong type", incr)
		}
	}
}

func TestTargetReplyAliasType(t *testing.T) {
	env := newTargetEnv(t, "hello")
	w := &testWidget{name: "w", allowDrop: true, effect: EffectCopy}
	env.dst.SetWidget(env.dstWin, w)
	alias, _ := env.srcC.InternAtom("text/plain;charset=utf-8")

	env.enter()
	env.position(250, 50)
	reqs := env.requests()
	if len(reqs) != 1 {
		t.Fatalf("requests: %v", len(reqs))
	}
	env.reply(reqs[0], alias, 8, []byte("hi"))
	if v, ok := w.LastData().Get(TypeUtf8String); !ok || v != "hi" {
		t.Fatalf("data: %v %v", v, ok)
	}
}
