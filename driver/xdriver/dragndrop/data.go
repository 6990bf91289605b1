package dragndrop

// Payload carried by a drag. Formats are type names known by the TypeRegistry (canonical names or aliases), in priority order.
type DataObject interface {
	Formats() []string
	Get(format string) (interface{}, bool)
}

// Map based DataObject that keeps insertion order.
type Data struct {
	formats []string
	m       map[string]interface{}
}

func NewData() *Data {
	return &Data{m: map[string]interface{}{}}
}

func (d *Data) Set(format string, v interface{}) {
	if _, ok := d.m[format]; !ok {
		d.formats = append(d.formats, format)
	}
	d.m[format] = v
}

func (d *Data) Get(format string) (interface{}, bool) {
	v, ok := d.m[format]
	return v, ok
}

func (d *Data) Formats() []string {
	return append([]string(nil), d.formats...)
}

func (d *Data) Len() int {
	return len(d.formats)
}

//----------

// Wraps values that are not a DataObject under a default format.
func payloadData(v interface{}) DataObject {
	switch t := v.(type) {
	case DataObject:
		return t
	case string:
		d := NewData()
		d.Set(TypeUtf8String, t)
		return d
	case []string:
		d := NewData()
		d.Set(TypeURIList, t)
		return d
	case []byte:
		d := NewData()
		d.Set(TypeOctetStream, t)
		return d
	case nil:
		return NewData()
	default:
		d := NewData()
		d.Set(TypeJSON, t)
		return d
	}
}
