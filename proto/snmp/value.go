package snmp

import (
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"

	"github.com/edgewatch/edgepull/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Varbind value conversion
// ─────────────────────────────────────────────────────────────────────────────

// pduValue converts a raw gosnmp varbind value to the data-point value
// contract. Octet strings that decode as UTF-8 become strings — and plain
// integer strings become integers, matching the behaviour of agents that
// render numeric values as text; non-textual octet strings render as an
// upper-case 0x hex dump. Error sentinels (NoSuchObject, NoSuchInstance,
// EndOfMibView, Null) yield nil, which skips the data point.
func pduValue(pdu gosnmp.SnmpPDU) models.Value {
	switch pdu.Type {
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil
	case gosnmp.OctetString:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return nil
		}
		if utf8.Valid(b) {
			s := string(b)
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return n
			}
			return s
		}
		return "0x" + strings.ToUpper(hex.EncodeToString(b))
	}

	switch v := pdu.Value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		return v
	case []byte:
		return "0x" + strings.ToUpper(hex.EncodeToString(v))
	default:
		return nil
	}
}

// normaliseOID strips a leading dot and surrounding whitespace. All OIDs in
// this package are compared and emitted in the no-leading-dot form.
func normaliseOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
