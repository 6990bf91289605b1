package dragndrop

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/jmigpin/xdnd/driver/xdriver/xfake"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	type test struct {
		name string
		v    interface{}
	}
	tests := []test{
		{TypeUtf8String, "hello, ação"},
		{TypeString, "café"},
		{TypeUtf16Text, "olá ✓"},
		{TypeURIList, []string{"/tmp/a b.txt", "http://example.com/x"}},
		{TypeHTML, "<p>x</p>"},
		{TypeJSON, map[string]interface{}{"a": []interface{}{1.0, "b"}}},
		{TypeOctetStream, []byte{0, 1, 2, 255}},
	}
	for _, tt := range tests {
		th, ok := reg.ResolveName(tt.name)
		if !ok {
			t.Fatalf("%v: not registered", tt.name)
		}
		b, err := th.Codec.Encode(tt.v)
		if err != nil {
			t.Fatalf("%v: %v", tt.name, err)
		}
		v, err := th.Codec.Decode(b)
		if err != nil {
			t.Fatalf("%v: %v", tt.name, err)
		}
		if !reflect.DeepEqual(v, tt.v) {
			t.Fatalf("%v: got %#v, expecting %#v", tt.name, v, tt.v)
		}
	}
}

func TestCodecs(t *testing.T) {
	// latin1 replaces what it can't encode
	b, err := Latin1Codec.Encode("a€b")
	if err != nil || len(b) != 3 || b[0] != 'a' || b[2] != 'b' {
		t.Fatalf("latin1: %q %v", b, err)
	}
	// nul terminated text
	v, _ := Utf8Codec.Decode([]byte("abc\x00"))
	if v != "abc" {
		t.Fatalf("utf8: %q", v)
	}
	// uri-list comments and file uris
	v, _ = URIListCodec.Decode([]byte("# comment\r\nfile:///tmp/a%20b\r\n\r\nhttp://x/y\r\n"))
	if !reflect.DeepEqual(v, []string{"/tmp/a b", "http://x/y"}) {
		t.Fatalf("uri-list: %#v", v)
	}
	b, _ = URIListCodec.Encode([]string{"/tmp/a b"})
	if !bytes.Equal(b, []byte("file:///tmp/a%20b\r\n")) {
		t.Fatalf("uri-list: %q", b)
	}
	if _, err := BytesCodec.Encode(1); err == nil {
		t.Fatal("bytes: expecting error")
	}
	if _, err := Utf8Codec.Encode(1); err == nil {
		t.Fatal("utf8: expecting error")
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewTypeRegistry()
	if err := reg.Register("a", []string{"a2"}, BytesCodec); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("a2", nil, BytesCodec); err == nil {
		t.Fatal("expecting duplicate name error")
	}
	if err := reg.Register("b", []string{"a"}, BytesCodec); err == nil {
		t.Fatal("expecting duplicate alias error")
	}
	if err := reg.Register("c", nil, nil); err == nil {
		t.Fatal("expecting missing codec error")
	}
	if len(reg.Handlers()) != 1 {
		t.Fatalf("handlers: %v", len(reg.Handlers()))
	}

	srv := xfake.NewServer(10, 10)
	c := srv.NewClient()
	if err := reg.Intern(c); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("d", nil, BytesCodec); err == nil {
		t.Fatal("expecting registry interned error")
	}

	a2, _ := c.InternAtom("a2")
	th, ok := reg.ResolveAtom(a2)
	if !ok || th.Name != "a" {
		t.Fatalf("alias atom: %v %v", th, ok)
	}
	if u := th.Atoms(); len(u) != 2 || u[1] != a2 {
		t.Fatalf("atoms: %v", u)
	}
	if th2, _ := reg.ResolveName("a2"); th2 != th {
		t.Fatal("alias name")
	}
}
