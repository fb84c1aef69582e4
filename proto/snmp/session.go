package snmp

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session factory — adapter config → live gosnmp session
// ─────────────────────────────────────────────────────────────────────────────

// Session is the subset of gosnmp the adapter consumes, extracted so tests
// can substitute a fake agent.
type Session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetBulk(oids []string, nonRepeaters uint8, maxRepetitions uint32) (*gosnmp.SnmpPacket, error)
	WalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

// Dial opens a Session for the given device parameters. Replaced in tests.
type Dial func(p SessionParams) (Session, error)

// SessionParams are the resolved connection parameters.
type SessionParams struct {
	Host      string
	Port      int
	Community string
	Version   int // 1 or 2 (v2c)
	Retries   int
	Timeout   time.Duration
}

// dialSNMP creates and connects a gosnmp session.
func dialSNMP(p SessionParams) (Session, error) {
	g := &gosnmp.GoSNMP{
		Target:    p.Host,
		Port:      uint16(p.Port),
		Community: p.Community,
		Timeout:   p.Timeout,
		Retries:   p.Retries,
		MaxOids:   60,
	}
	switch p.Version {
	case 1:
		g.Version = gosnmp.Version1
	case 2:
		g.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("unsupported SNMP version %d", p.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", p.Host, p.Port, err)
	}
	return &gosnmpSession{GoSNMP: g}, nil
}

// gosnmpSession adds Close to *gosnmp.GoSNMP.
type gosnmpSession struct {
	*gosnmp.GoSNMP
}

func (s *gosnmpSession) Close() error {
	if s.Conn != nil {
		return s.Conn.Close()
	}
	return nil
}
