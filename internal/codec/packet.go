package codec

// MaxUDPSize is the 512-byte DNS message limit for plain UDP (no EDNS(0),
// so no larger advertised buffer size applies). It sizes the UDP receive
// buffers; Encode does not enforce it, and a longer reply is sent to a UDP
// client as is, without truncation.
const MaxUDPSize = 512

// Packet is a complete DNS message.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// NewPacket returns an empty packet with the given transaction id.
func NewPacket(id uint16) *Packet {
	return &Packet{Header: Header{ID: id}}
}

// Decode parses a complete DNS message from raw wire bytes.
func Decode(raw []byte) (*Packet, error) {
	buf := NewBuffer(raw)
	p := &Packet{}

	if err := p.Header.Read(buf); err != nil {
		return nil, err
	}

	p.Questions = make([]Question, 0, p.Header.QDCount)
	for i := uint16(0); i < p.Header.QDCount; i++ {
		var q Question
		if err := q.Read(buf); err != nil {
			return nil, err
		}
		p.Questions = append(p.Questions, q)
	}

	readRecords := func(n uint16) ([]Record, error) {
		out := make([]Record, 0, n)
		for i := uint16(0); i < n; i++ {
			var r Record
			if err := r.Read(buf); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	var err error
	if p.Answers, err = readRecords(p.Header.ANCount); err != nil {
		return nil, err
	}
	if p.Authorities, err = readRecords(p.Header.NSCount); err != nil {
		return nil, err
	}
	if p.Additionals, err = readRecords(p.Header.ARCount); err != nil {
		return nil, err
	}

	return p, nil
}

// Encode serializes the packet to wire bytes, fixing up the header's
// section counts to match the slices actually present.
func (p *Packet) Encode() ([]byte, error) {
	p.Header.QDCount = uint16(len(p.Questions))
	p.Header.ANCount = uint16(len(p.Answers))
	p.Header.NSCount = uint16(len(p.Authorities))
	p.Header.ARCount = uint16(len(p.Additionals))

	w := NewWriter(MaxUDPSize)

	if err := p.Header.Write(w); err != nil {
		return nil, err
	}
	for i := range p.Questions {
		if err := p.Questions[i].Write(w); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for i := range section {
			if err := section[i].Write(w); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}
