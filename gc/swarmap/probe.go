package swarmap

// Probe walks a table's bucket indices on a miss: start at a hash-derived
// index and advance by a hash-derived odd step. Because the table size is
// always a power of two and the step is forced odd, gcd(step, size) == 1,
// so the sequence visits every bucket exactly once before repeating
// (quadratic-ish probing without ever needing to detect a cycle early).
type Probe struct {
	mask uint64
	step uint64
	next uint64
}

// NewProbe builds a probe sequence over a table of bucketCount buckets
// (must be a power of two) for hash h.
func NewProbe(h uint64, bucketCount uint64) Probe {
	mask := bucketCount - 1
	return Probe{
		mask: mask,
		step: (h >> 32) | 1,
		next: h & mask,
	}
}

// Next returns the next bucket index in the sequence.
func (p *Probe) Next() uint64 {
	cur := p.next
	p.next = (p.next + p.step) & p.mask
	return cur
}
