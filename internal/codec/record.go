package codec

import (
	"fmt"
	"net"
)

// Record is a single resource record. Only the fields relevant to its Type
// are meaningful; unlike a tagged union this is a flat struct, matching the
// idiom used elsewhere in the retrieval pack for hand-rolled DNS codecs.
type Record struct {
	Name  string
	Type  QueryType
	Class uint16
	TTL   uint32

	// A / AAAA
	IP net.IP

	// NS / CNAME
	Host string

	// MX
	Preference uint16
	Exchange   string

	// Any other type: the raw rdata, preserved verbatim so the record can be
	// skipped on read and, if ever needed, replayed on write.
	RawData []byte
}

// Read parses one resource record from buf.
func (r *Record) Read(buf *Buffer) error {
	name, err := buf.ReadName()
	if err != nil {
		return err
	}
	qtype, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	class, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	ttl, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	rdlength, err := buf.ReadUint16()
	if err != nil {
		return err
	}

	r.Name = name
	r.Type = QueryType(qtype)
	r.Class = class
	r.TTL = ttl

	switch r.Type {
	case TypeA:
		raw, err := buf.ReadBytes(4)
		if err != nil {
			return err
		}
		r.IP = net.IPv4(raw[0], raw[1], raw[2], raw[3])

	case TypeAAAA:
		raw, err := buf.ReadBytes(16)
		if err != nil {
			return err
		}
		r.IP = net.IP(raw)

	case TypeNS, TypeCNAME:
		host, err := buf.ReadName()
		if err != nil {
			return err
		}
		r.Host = host

	case TypeMX:
		pref, err := buf.ReadUint16()
		if err != nil {
			return err
		}
		exchange, err := buf.ReadName()
		if err != nil {
			return err
		}
		r.Preference = pref
		r.Exchange = exchange

	default:
		raw, err := buf.ReadBytes(int(rdlength))
		if err != nil {
			return err
		}
		r.RawData = raw
	}

	return nil
}

// Write serializes the record. For variable-length bodies (NS, CNAME, MX)
// the rdlength field is reserved, the body written, and the field patched
// with the actual body length once known.
func (r *Record) Write(w *Writer) error {
	if err := w.WriteName(r.Name); err != nil {
		return err
	}
	if err := w.WriteUint16(uint16(r.Type)); err != nil {
		return err
	}
	if err := w.WriteUint16(ClassIN); err != nil {
		return err
	}
	if err := w.WriteUint32(r.TTL); err != nil {
		return err
	}

	switch r.Type {
	case TypeA:
		ip4 := r.IP.To4()
		if ip4 == nil {
			return fmt.Errorf("codec: A record %q has no IPv4 address", r.Name)
		}
		if err := w.WriteUint16(4); err != nil {
			return err
		}
		return w.WriteBytes(ip4)

	case TypeAAAA:
		ip16 := r.IP.To16()
		if ip16 == nil {
			return fmt.Errorf("codec: AAAA record %q has no IPv6 address", r.Name)
		}
		if err := w.WriteUint16(16); err != nil {
			return err
		}
		return w.WriteBytes(ip16)

	case TypeNS, TypeCNAME:
		lenPos := w.Position()
		if err := w.WriteUint16(0); err != nil {
			return err
		}
		bodyStart := w.Position()
		if err := w.WriteName(r.Host); err != nil {
			return err
		}
		return w.SetUint16(lenPos, uint16(w.Position()-bodyStart))

	case TypeMX:
		lenPos := w.Position()
		if err := w.WriteUint16(0); err != nil {
			return err
		}
		bodyStart := w.Position()
		if err := w.WriteUint16(r.Preference); err != nil {
			return err
		}
		if err := w.WriteName(r.Exchange); err != nil {
			return err
		}
		return w.SetUint16(lenPos, uint16(w.Position()-bodyStart))

	default:
		if err := w.WriteUint16(uint16(len(r.RawData))); err != nil {
			return err
		}
		return w.WriteBytes(r.RawData)
	}
}
