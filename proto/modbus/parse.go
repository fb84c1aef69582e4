package modbus

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Flexible integers
// ─────────────────────────────────────────────────────────────────────────────

// flexInt accepts a YAML integer or a string holding a decimal / hex literal.
// The unit and default-unit fields use it.
type flexInt struct {
	value int
}

func (f *flexInt) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!int":
		return node.Decode(&f.value)
	case "!!str":
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		v, err := parseInt(s)
		if err != nil {
			return err
		}
		f.value = v
		return nil
	default:
		return fmt.Errorf("expected integer or string, got %s", node.Tag)
	}
}

// parseInt parses a decimal or 0x-prefixed hexadecimal literal.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	var (
		v   int64
		err error
	)
	if strings.Contains(s, "x") {
		v, err = strconv.ParseInt(s, 0, 64)
	} else {
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(v), nil
}

// splitSource splits a "host[:port]" source, falling back to the default
// port when none (or a non-numeric one) is present.
func splitSource(source string, def int) (host string, port int) {
	i := strings.LastIndexByte(source, ':')
	if i < 0 {
		return source, def
	}
	p, err := strconv.Atoi(source[i+1:])
	if err != nil {
		return source, def
	}
	return source[:i], p
}

// ─────────────────────────────────────────────────────────────────────────────
// Offsets
// ─────────────────────────────────────────────────────────────────────────────

// offsetSpec is the raw offset field of a process entry: an integer, or a
// string with an optional "=" prefix (absolute register address instead of a
// block-relative offset) and an optional "/bit" suffix (bit index within the
// register). Addresses may be hex.
type offsetSpec struct {
	num    int
	str    string
	isNum  bool
	exists bool
}

func (o *offsetSpec) UnmarshalYAML(node *yaml.Node) error {
	o.exists = true
	switch node.Tag {
	case "!!int":
		o.isNum = true
		return node.Decode(&o.num)
	case "!!str":
		return node.Decode(&o.str)
	default:
		return fmt.Errorf("expected integer or string offset, got %s", node.Tag)
	}
}

// resolve turns the spec into a block-relative register offset and a bit
// index (−1 when no bit suffix is present). addr is the pull's first register
// address, subtracted from "=absolute" offsets.
func (o offsetSpec) resolve(addr int) (offset, bit int, err error) {
	if !o.exists {
		return 0, 0, fmt.Errorf("offset is required")
	}
	if o.isNum {
		if o.num < 0 {
			return 0, 0, fmt.Errorf("offset is negative")
		}
		return o.num, -1, nil
	}

	s := o.str
	bit = -1
	if i := strings.IndexByte(s, '/'); i >= 0 {
		bit, err = parseInt(s[i+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("bit %q: %w", s[i+1:], err)
		}
		if bit < 0 {
			return 0, 0, fmt.Errorf("bit is negative")
		}
		s = s[:i]
	}

	absolute := false
	if strings.HasPrefix(s, "=") {
		absolute = true
		s = s[1:]
	}

	offset, err = parseInt(s)
	if err != nil {
		return 0, 0, fmt.Errorf("offset %q: %w", s, err)
	}
	if absolute {
		offset -= addr
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("offset is negative")
	}
	return offset, bit, nil
}
