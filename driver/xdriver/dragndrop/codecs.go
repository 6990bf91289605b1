package dragndrop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Canonical type names of the default registry.
const (
	TypeUtf8String  = "UTF8_STRING"
	TypeString      = "STRING" // latin-1
	TypeUtf16Text   = "text/plain;charset=utf-16"
	TypeURIList     = "text/uri-list"
	TypeHTML        = "text/html"
	TypeJSON        = "application/json"
	TypeOctetStream = "application/octet-stream"
)

func NewDefaultTypeRegistry() *TypeRegistry {
	reg := NewTypeRegistry()
	reg.MustRegister(TypeUtf8String, []string{"text/plain;charset=utf-8", "text/plain"}, Utf8Codec)
	reg.MustRegister(TypeString, []string{"text/plain;charset=iso-8859-1"}, Latin1Codec)
	reg.MustRegister(TypeUtf16Text, nil, Utf16Codec)
	reg.MustRegister(TypeURIList, nil, URIListCodec)
	reg.MustRegister(TypeHTML, nil, Utf8Codec)
	reg.MustRegister(TypeJSON, nil, JSONCodec)
	reg.MustRegister(TypeOctetStream, nil, BytesCodec)
	return reg
}

//----------

var Utf8Codec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		s, err := textValue(v)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		return string(trimNul(b)), nil
	},
}

var Latin1Codec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		s, err := textValue(v)
		if err != nil {
			return nil, err
		}
		enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
		b, err := enc.Bytes([]byte(s))
		return b, errors.Wrap(err, "latin1 encode")
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		u, err := charmap.ISO8859_1.NewDecoder().Bytes(trimNul(b))
		if err != nil {
			return nil, errors.Wrap(err, "latin1 decode")
		}
		return string(u), nil
	},
}

var Utf16Codec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		s, err := textValue(v)
		if err != nil {
			return nil, err
		}
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		b, err := enc.Bytes([]byte(s))
		return b, errors.Wrap(err, "utf16 encode")
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		u, err := dec.Bytes(b)
		if err != nil {
			return nil, errors.Wrap(err, "utf16 decode")
		}
		return string(trimNul(u)), nil
	},
}

// Value is a []string with file paths or uris. File uris are decoded to paths.
var URIListCodec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		var u []string
		switch t := v.(type) {
		case []string:
			u = t
		case string:
			u = []string{t}
		default:
			return nil, fmt.Errorf("uri-list: unexpected value type: %T", v)
		}
		buf := &bytes.Buffer{}
		for _, s := range u {
			buf.WriteString(pathToURI(s))
			buf.WriteString("\r\n")
		}
		return buf.Bytes(), nil
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		u := []string{}
		for _, line := range strings.Split(string(trimNul(b)), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || line[0] == '#' {
				continue
			}
			u = append(u, uriToPath(line))
		}
		return u, nil
	},
}

var JSONCodec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		b, err := json.Marshal(v)
		return b, errors.Wrap(err, "json encode")
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		var v interface{}
		if err := json.Unmarshal(trimNul(b), &v); err != nil {
			return nil, errors.Wrap(err, "json decode")
		}
		return v, nil
	},
}

var BytesCodec = CodecFuncs{
	EncodeFn: func(v interface{}) ([]byte, error) {
		switch t := v.(type) {
		case []byte:
			return t, nil
		case string:
			return []byte(t), nil
		}
		return nil, fmt.Errorf("bytes: unexpected value type: %T", v)
	},
	DecodeFn: func(b []byte) (interface{}, error) {
		return append([]byte(nil), b...), nil
	},
}

//----------

func textValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("text: unexpected value type: %T", v)
}

// Some sources include a terminating nul.
func trimNul(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

func pathToURI(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		return s
	}
	if abs, err := filepath.Abs(s); err == nil {
		s = abs
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(s)}
	return u.String()
}

func uriToPath(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "file" {
		return s
	}
	return filepath.FromSlash(u.Path)
}
