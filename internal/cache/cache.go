// Package cache implements the resolver's per-domain, per-query-type
// positive and negative record cache.
package cache

import (
	"sync"
	"time"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// State describes whether a (domain, qtype) pair currently has usable
// cached data.
type State int

const (
	NotCached State = iota
	PositiveCache
	NegativeCache
)

// Entry pairs a record with the time it was stored, so its remaining TTL
// can be computed at lookup time.
type Entry struct {
	Record  codec.Record
	Stored  time.Time
}

func (e Entry) expired(now time.Time) bool {
	return e.Stored.Add(time.Duration(e.Record.TTL) * time.Second).Before(now)
}

// recordKey identifies a record by its value, ignoring TTL and storage
// time, so re-storing an equal record refreshes its entry instead of
// duplicating it.
type recordKey struct {
	name       string
	qtype      codec.QueryType
	ip         string
	host       string
	preference uint16
	exchange   string
}

func keyOf(r codec.Record) recordKey {
	k := recordKey{name: r.Name, qtype: r.Type}
	switch r.Type {
	case codec.TypeA, codec.TypeAAAA:
		if r.IP != nil {
			k.ip = r.IP.String()
		}
	case codec.TypeNS, codec.TypeCNAME:
		k.host = r.Host
	case codec.TypeMX:
		k.preference = r.Preference
		k.exchange = r.Exchange
	}
	return k
}

// negativeEntry is the negative-cache counterpart of a RecordSet: "this
// qtype does not exist for this domain, as of Stored, for TTL seconds".
type negativeEntry struct {
	ttl    uint32
	stored time.Time
}

func (n negativeEntry) expired(now time.Time) bool {
	return n.stored.Add(time.Duration(n.ttl) * time.Second).Before(now)
}

// recordSet is either a positive set of records for one qtype, or a
// negative entry -- never both.
type recordSet struct {
	records  map[recordKey]Entry
	negative *negativeEntry
}

// domainEntry is the cache's unit of storage: one per domain name, holding
// one recordSet per query type queried for it, plus the domain's lifetime
// hit and update counters.
type domainEntry struct {
	domain     string
	byType     map[codec.QueryType]*recordSet
	hits       uint64
	updates    uint64
}

func newDomainEntry(domain string) *domainEntry {
	return &domainEntry{domain: domain, byType: map[codec.QueryType]*recordSet{}}
}

// Cache is the resolver's shared record cache. The zero value is not
// usable; construct with New. A Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	domains map[string]*domainEntry
	now     func() time.Time
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		domains: map[string]*domainEntry{},
		now:     time.Now,
	}
}

// Stats reports a domain's lifetime hit/update counters, for tests and
// metrics. It returns ok=false if the domain has never been touched.
func (c *Cache) Stats(domain string) (hits, updates uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	de, found := c.domains[domain]
	if !found {
		return 0, 0, false
	}
	return de.hits, de.updates, true
}

// State reports the cache state for (domain, qtype) per the decision
// table: NotCached if there is no entry, or the entry for this qtype has
// expired or is empty; PositiveCache if at least one non-expired record is
// held; NegativeCache if a non-expired negative entry is held.
func (c *Cache) State(domain string, qtype codec.QueryType) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(domain, qtype, c.now())
}

func (c *Cache) stateLocked(domain string, qtype codec.QueryType, now time.Time) State {
	de, found := c.domains[domain]
	if !found {
		return NotCached
	}
	rs, found := de.byType[qtype]
	if !found {
		return NotCached
	}
	if rs.negative != nil {
		if rs.negative.expired(now) {
			return NotCached
		}
		return NegativeCache
	}
	for _, e := range rs.records {
		if !e.expired(now) {
			return PositiveCache
		}
	}
	return NotCached
}

// Lookup returns a response packet built from cached data for (qname,
// qtype), or ok=false on a cache miss. A positive hit increments the
// domain's hit counter once, regardless of how many records it returns; a
// negative hit and a miss do not affect the hit counter.
func (c *Cache) Lookup(qname string, qtype codec.QueryType) (pkt *codec.Packet, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	state := c.stateLocked(qname, qtype, now)

	switch state {
	case PositiveCache:
		de := c.domains[qname]
		rs := de.byType[qtype]

		p := &codec.Packet{Header: codec.Header{Rcode: codec.RcodeNoError}}
		for _, e := range rs.records {
			if !e.expired(now) {
				p.Answers = append(p.Answers, e.Record)
			}
		}
		if nsSet, found := de.byType[codec.TypeNS]; found && nsSet.records != nil {
			for _, e := range nsSet.records {
				if !e.expired(now) {
					p.Authorities = append(p.Authorities, e.Record)
				}
			}
		}
		de.hits++
		return p, true

	case NegativeCache:
		p := &codec.Packet{Header: codec.Header{Rcode: codec.RcodeNXDomain}}
		return p, true

	default:
		return nil, false
	}
}

// Store inserts or refreshes each record's entry under its own owner
// domain, creating the domain's entry if this is the first time it has
// been seen. Storing is always an update-in-place: an existing
// DomainEntry's counters and other query types' data are preserved.
// Records of any type the codec does not decode (UNKNOWN, whatever their
// numeric type) are not cacheable and are skipped. Updates increments
// once per stored record.
func (c *Cache) Store(records []codec.Record) {
	if len(records) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, r := range records {
		switch r.Type {
		case codec.TypeA, codec.TypeNS, codec.TypeCNAME, codec.TypeMX, codec.TypeAAAA:
		default:
			continue
		}

		de, found := c.domains[r.Name]
		if !found {
			de = newDomainEntry(r.Name)
			c.domains[r.Name] = de
		}

		rs, found := de.byType[r.Type]
		if !found || rs.negative != nil {
			rs = &recordSet{records: map[recordKey]Entry{}}
			de.byType[r.Type] = rs
		}

		rs.records[keyOf(r)] = Entry{Record: r, Stored: now}
		de.updates++
	}
}

// StoreNXDomain records that (qname, qtype) does not exist, for ttl
// seconds. It updates the existing DomainEntry in place if one exists,
// creating one otherwise. Every call increments updates by 1.
func (c *Cache) StoreNXDomain(qname string, qtype codec.QueryType, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	de, found := c.domains[qname]
	if !found {
		de = newDomainEntry(qname)
		c.domains[qname] = de
	}

	de.byType[qtype] = &recordSet{negative: &negativeEntry{ttl: ttl, stored: c.now()}}
	de.updates++
}
