package codec

// QueryType enumerates the resource record types this resolver understands
// on the wire. Types outside this set keep their numeric value and still
// round-trip with their raw payload preserved; String reports them as
// "UNKNOWN".
type QueryType uint16

const (
	TypeUnknown QueryType = 0
	TypeA       QueryType = 1
	TypeNS      QueryType = 2
	TypeCNAME   QueryType = 5
	TypeMX      QueryType = 15
	TypeAAAA    QueryType = 28
)

// String renders the query type the way it appears in zone files and logs.
func (t QueryType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeMX:
		return "MX"
	case TypeAAAA:
		return "AAAA"
	default:
		return "UNKNOWN"
	}
}

// ClassIN is the only record class this resolver serves.
const ClassIN uint16 = 1

// Question is a single entry in a message's question section.
type Question struct {
	Name  string
	Type  QueryType
	Class uint16
}

// Read parses a question from buf.
func (q *Question) Read(buf *Buffer) error {
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
	q.Name = name
	q.Type = QueryType(qtype)
	q.Class = class
	return nil
}

// Write serializes the question.
func (q *Question) Write(w *Writer) error {
	if err := w.WriteName(q.Name); err != nil {
		return err
	}
	if err := w.WriteUint16(uint16(q.Type)); err != nil {
		return err
	}
	return w.WriteUint16(q.Class)
}
