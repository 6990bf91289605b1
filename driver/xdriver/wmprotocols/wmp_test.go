package wmprotocols

import (
	"image"
	"testing"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/xdnd/driver/xdriver/xfake"
)

func TestDeleteWindow(t *testing.T) {
	srv := xfake.NewServer(100, 100)
	c := srv.NewClient()
	win, err := c.CreateWindow(srv.Root(), image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	wmp, err := NewWMP(c, win)
	if err != nil {
		t.Fatal(err)
	}

	protocols, _ := c.InternAtom("WM_PROTOCOLS")
	del, _ := c.InternAtom("WM_DELETE_WINDOW")
	r, err := c.GetProperty(win, protocols, false, 0, 1)
	if err != nil || r.Type != xproto.AtomAtom || xgb.Get32(r.Value) != uint32(del) {
		t.Fatalf("property: %+v %v", r, err)
	}

	ev := &xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   protocols,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{uint32(del), 0, 0, 0, 0}),
	}
	if !wmp.IsDeleteWindow(ev) {
		t.Fatal("expecting delete window")
	}
	ev.Window = srv.Root()
	if wmp.IsDeleteWindow(ev) {
		t.Fatal("other window")
	}
}
