// Package txcache implements the transaction cache (C5): a
// bucket-hashed map from transaction id to in-progress record, with a
// soft per-bucket cap and age-ordered eviction, following the teacher's
// MRU doubly-linked-list idiom but stripped of its TTL/memory-budget
// bookkeeping and concurrency (the dispatcher that drives this cache is
// single-threaded, spec §5).
package txcache

import "github.com/vklog/vklogd/internal/scratch"

// Match is one slot's captured value for one fconf, or the unset zero
// value when nothing has matched yet and the slot will render its
// default.
type Match struct {
	Bytes []byte
	Set   bool
}

// Rec is a transaction record: all state the dispatcher and renderer
// accumulate for one in-flight transaction id.
type Rec struct {
	ID       uint64
	TagsSeen uint64
	TLast    int64
	Seq      uint64
	Key      []byte

	Matches [][]Match
	Scratch *scratch.Region

	bucket     int
	prev, next *Rec
}

// Slot returns the slot's current match for fconf. The per-fconf match
// rows are all allocated when the record is created.
func (r *Rec) Slot(fconf, slotIndex int) *Match {
	return &r.Matches[fconf][slotIndex]
}

type bucketList struct {
	head, tail *Rec
	size       int
}

// Cache is the bucket-hashed transaction-id index.
type Cache struct {
	buckets     []bucketList
	index       map[uint64]*Rec
	cap         int
	scratchSize int
	slotCounts  []int
	now         func() int64
}

// New returns a Cache with h buckets, a soft per-bucket cap of k, a
// per-record scratch region of scratchSize bytes, and slotCounts[f]
// dynamic-or-literal slot rows reserved per fconf index. now supplies
// monotonic seconds for TLast bookkeeping (tests can inject a fake
// clock; production wires time.Now().Unix() via a small wrapper).
func New(h, k, scratchSize int, slotCounts []int, now func() int64) *Cache {
	if h <= 0 {
		h = 5000
	}
	if k <= 0 {
		k = 5
	}
	return &Cache{
		buckets:     make([]bucketList, h),
		index:       make(map[uint64]*Rec, h*k),
		cap:         k,
		scratchSize: scratchSize,
		slotCounts:  slotCounts,
		now:         now,
	}
}

// Get returns the record for id, allocating and linking a fresh one on
// a cache miss. A miss may evict the bucket's oldest non-empty record
// first if the bucket is already at its soft cap (spec §4.5).
func (c *Cache) Get(id uint64) *Rec {
	if rec, ok := c.index[id]; ok {
		c.touch(rec)
		return rec
	}

	b := int(id % uint64(len(c.buckets)))
	bl := &c.buckets[b]
	if bl.size >= c.cap {
		c.evictOldest(bl)
	}

	rec := c.newRec(id, b)
	c.linkFront(bl, rec)
	c.index[id] = rec
	return rec
}

func (c *Cache) newRec(id uint64, bucket int) *Rec {
	matches := make([][]Match, len(c.slotCounts))
	for f, n := range c.slotCounts {
		matches[f] = make([]Match, n)
	}
	return &Rec{
		ID:      id,
		TLast:   c.now(),
		Matches: matches,
		Scratch: scratch.New(c.scratchSize),
		bucket:  bucket,
	}
}

// evictOldest drops the bucket's least-recently-touched record whose
// TagsSeen != 0, never a just-created empty one (spec §4.5 eviction
// rationale). If every record in the bucket is still empty, the
// bucket is left over its soft cap rather than discard fresh state.
func (c *Cache) evictOldest(bl *bucketList) {
	for rec := bl.tail; rec != nil; rec = rec.prev {
		if rec.TagsSeen != 0 {
			c.unlink(bl, rec)
			delete(c.index, rec.ID)
			return
		}
	}
}

// touch moves rec to the front of its bucket's list (most recently
// used), matching the reference cache's MRU reordering on every hit.
func (c *Cache) touch(rec *Rec) {
	bl := &c.buckets[rec.bucket]
	if bl.head == rec {
		return
	}
	c.unlink(bl, rec)
	c.linkFront(bl, rec)
}

func (c *Cache) linkFront(bl *bucketList, rec *Rec) {
	rec.prev = nil
	rec.next = bl.head
	if bl.head != nil {
		bl.head.prev = rec
	}
	bl.head = rec
	if bl.tail == nil {
		bl.tail = rec
	}
	bl.size++
}

func (c *Cache) unlink(bl *bucketList, rec *Rec) {
	if rec.prev != nil {
		rec.prev.next = rec.next
	} else {
		bl.head = rec.next
	}
	if rec.next != nil {
		rec.next.prev = rec.prev
	} else {
		bl.tail = rec.prev
	}
	rec.prev, rec.next = nil, nil
	bl.size--
}

// Reset clears every slot match, frees the scratch region's overflow
// blocks, drops the key buffer and zeros TagsSeen and Seq, but keeps
// the record linked under its id for reuse (spec §4.5, "Reset ...
// preserves id").
func (c *Cache) Reset(rec *Rec) {
	for f := range rec.Matches {
		for i := range rec.Matches[f] {
			rec.Matches[f][i] = Match{}
		}
	}
	rec.Scratch.Reset()
	rec.Key = nil
	rec.TagsSeen = 0
	rec.Seq = 0
	rec.TLast = c.now()
}

// Len reports the total number of records currently cached, for the
// current_transaction_count counter.
func (c *Cache) Len() int {
	return len(c.index)
}

// Drain unlinks and drops every record from every bucket; the records
// themselves are not Reset.
func (c *Cache) Drain() {
	for b := range c.buckets {
		bl := &c.buckets[b]
		for rec := bl.head; rec != nil; {
			next := rec.next
			rec.prev, rec.next = nil, nil
			rec = next
		}
		bl.head, bl.tail, bl.size = nil, nil, 0
	}
	c.index = make(map[uint64]*Rec, len(c.buckets)*c.cap)
}
