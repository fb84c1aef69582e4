package enip

import (
	"fmt"
	"time"

	"github.com/danomagnum/gologix"
)

// ─────────────────────────────────────────────────────────────────────────────
// TagReader — typed accessors over the CIP tag library
// ─────────────────────────────────────────────────────────────────────────────

// TagReader exposes the tag library's typed accessors. Each call issues one
// typed read of the addressed value; the adapter extracts values through
// these accessors directly instead of reassembling them from raw bytes.
// offset is the byte offset of the value within the tag and must be aligned
// to the value's width. The production implementation wraps a gologix CIP
// session; tests substitute a fake.
type TagReader interface {
	Int8(tag string, offset int) (int64, error)
	Uint8(tag string, offset int) (uint64, error)
	Int16(tag string, offset int) (int64, error)
	Uint16(tag string, offset int) (uint64, error)
	Int32(tag string, offset int) (int64, error)
	Uint32(tag string, offset int) (uint64, error)
	Int64(tag string, offset int) (int64, error)
	Uint64(tag string, offset int) (uint64, error)
	Real32(tag string, offset int) (float64, error)
	Real64(tag string, offset int) (float64, error)
	Close() error
}

// Dial opens a TagReader against the given gateway host. Replaced in tests.
type Dial func(host string, timeout time.Duration) (TagReader, error)

// dialGologix connects a gologix client to the controller.
func dialGologix(host string, timeout time.Duration) (TagReader, error) {
	c := gologix.NewClient(host)
	c.SocketTimeout = timeout
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("enip connect %s: %w", host, err)
	}
	return &gologixReader{client: c}, nil
}

// gologixReader implements TagReader with one typed gologix Read per call.
type gologixReader struct {
	client *gologix.Client
}

// elemAddress converts a byte offset into a CIP element address: offset 0
// reads the tag itself, a nonzero offset addresses the array element at
// offset/width.
func elemAddress(tag string, offset, width int) string {
	if offset == 0 {
		return tag
	}
	return fmt.Sprintf("%s[%d]", tag, offset/width)
}

// readElem performs one typed read of the value at the given byte offset.
// The destination type selects the CIP data type on the wire.
func readElem[T any](r *gologixReader, tag string, offset, width int) (T, error) {
	var v T
	if err := r.client.Read(elemAddress(tag, offset, width), &v); err != nil {
		return v, fmt.Errorf("enip read %s: %w", tag, err)
	}
	return v, nil
}

func (r *gologixReader) Int8(tag string, offset int) (int64, error) {
	v, err := readElem[int8](r, tag, offset, 1)
	return int64(v), err
}

func (r *gologixReader) Uint8(tag string, offset int) (uint64, error) {
	v, err := readElem[uint8](r, tag, offset, 1)
	return uint64(v), err
}

func (r *gologixReader) Int16(tag string, offset int) (int64, error) {
	v, err := readElem[int16](r, tag, offset, 2)
	return int64(v), err
}

func (r *gologixReader) Uint16(tag string, offset int) (uint64, error) {
	v, err := readElem[uint16](r, tag, offset, 2)
	return uint64(v), err
}

func (r *gologixReader) Int32(tag string, offset int) (int64, error) {
	v, err := readElem[int32](r, tag, offset, 4)
	return int64(v), err
}

func (r *gologixReader) Uint32(tag string, offset int) (uint64, error) {
	v, err := readElem[uint32](r, tag, offset, 4)
	return uint64(v), err
}

func (r *gologixReader) Int64(tag string, offset int) (int64, error) {
	v, err := readElem[int64](r, tag, offset, 8)
	return v, err
}

func (r *gologixReader) Uint64(tag string, offset int) (uint64, error) {
	v, err := readElem[uint64](r, tag, offset, 8)
	return v, err
}

func (r *gologixReader) Real32(tag string, offset int) (float64, error) {
	v, err := readElem[float32](r, tag, offset, 4)
	return float64(v), err
}

func (r *gologixReader) Real64(tag string, offset int) (float64, error) {
	v, err := readElem[float64](r, tag, offset, 8)
	return v, err
}

func (r *gologixReader) Close() error {
	return r.client.Disconnect()
}
