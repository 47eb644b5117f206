package stimqueue

import (
	"math/rand/v2"
)

// policy decides which token key is dispatched next and how trial
// decrements interact with the ordering.
type policy interface {
	nextKey() (Key, error)
	decrementKey(key Key, n int) (bool, error)
	appended(key Key)
	countTrials() int
}

// NewFIFO returns a queue that plays tokens in insertion order, finishing
// each token's trials before moving to the next.
func NewFIFO(fs float64) *Queue {
	q := newQueue(fs)
	q.policy = &fifoPolicy{q: q}
	return q
}

type fifoPolicy struct {
	q *Queue
}

func (p *fifoPolicy) nextKey() (Key, error) {
	if len(p.q.ordering) == 0 {
		return Key{}, ErrQueueEmpty
	}
	return p.q.ordering[0], nil
}

func (p *fifoPolicy) decrementKey(key Key, n int) (bool, error) {
	return p.q.defaultDecrement(key, n)
}

func (p *fifoPolicy) appended(Key) {}

func (p *fifoPolicy) countTrials() int { return p.q.sumTrials() }

// NewInterleavedFIFO returns a queue that rotates through all tokens,
// dispatching one trial of each in turn. The queue completes only when
// every token's trials are exhausted.
func NewInterleavedFIFO(fs float64) *Queue {
	q := newQueue(fs)
	q.policy = &interleavedPolicy{q: q, cursor: -1}
	return q
}

type interleavedPolicy struct {
	q        *Queue
	cursor   int
	complete bool
}

func (p *interleavedPolicy) nextKey() (Key, error) {
	if p.complete || len(p.q.ordering) == 0 {
		return Key{}, ErrQueueEmpty
	}
	p.cursor = (p.cursor + 1) % len(p.q.ordering)
	return p.q.ordering[p.cursor], nil
}

// decrementKey keeps the key in the ordering; counters may go negative.
// The queue is complete once no token has trials left.
func (p *interleavedPolicy) decrementKey(key Key, n int) (bool, error) {
	if !p.q.inOrdering(key) {
		return false, unknownKeyErr(key)
	}
	p.q.data[key].Trials -= n
	for _, tok := range p.q.data {
		if tok.Trials > 0 {
			return false, nil
		}
	}
	p.complete = true
	return true, nil
}

func (p *interleavedPolicy) appended(Key) {}

func (p *interleavedPolicy) countTrials() int { return p.q.sumTrialsClamped() }

// NewRandom returns a queue that picks the next token uniformly at random
// from the ordering.
func NewRandom(fs float64) *Queue {
	q := newQueue(fs)
	q.policy = &randomPolicy{q: q}
	return q
}

type randomPolicy struct {
	q *Queue
}

func (p *randomPolicy) nextKey() (Key, error) {
	if len(p.q.ordering) == 0 {
		return Key{}, ErrQueueEmpty
	}
	return p.q.ordering[rand.IntN(len(p.q.ordering))], nil
}

func (p *randomPolicy) decrementKey(key Key, n int) (bool, error) {
	return p.q.defaultDecrement(key, n)
}

func (p *randomPolicy) appended(Key) {}

func (p *randomPolicy) countTrials() int { return p.q.sumTrials() }

// NewBlockedRandom returns a queue that dispatches one trial of every
// token per block, shuffling the within-block order with a seeded PRNG.
// Completion follows the interleaved rule.
func NewBlockedRandom(fs float64, seed uint64) *Queue {
	q := newQueue(fs)
	q.policy = &blockedRandomPolicy{
		interleavedPolicy: interleavedPolicy{q: q, cursor: -1},
		rng:               rand.New(rand.NewPCG(seed, seed)),
	}
	return q
}

type blockedRandomPolicy struct {
	interleavedPolicy
	rng   *rand.Rand
	block []int // shuffled ordering indices, consumed from the tail
}

func (p *blockedRandomPolicy) nextKey() (Key, error) {
	if p.complete || len(p.q.ordering) == 0 {
		return Key{}, ErrQueueEmpty
	}
	if len(p.block) == 0 {
		p.block = make([]int, len(p.q.ordering))
		for i := range p.block {
			p.block[i] = i
		}
		p.rng.Shuffle(len(p.block), func(i, j int) {
			p.block[i], p.block[j] = p.block[j], p.block[i]
		})
	}
	i := p.block[len(p.block)-1]
	p.block = p.block[:len(p.block)-1]
	return p.q.ordering[i], nil
}

// NewGroupedFIFO returns a queue that cycles through the first groupSize
// keys of the ordering until all of their trials are exhausted, then
// advances to the next group.
func NewGroupedFIFO(fs float64, groupSize int) *Queue {
	q := newQueue(fs)
	q.policy = &groupedPolicy{q: q, groupSize: groupSize, cursor: -1}
	return q
}

type groupedPolicy struct {
	q         *Queue
	groupSize int
	cursor    int
	grow      bool // blocked variant: group size tracks appends
}

func (p *groupedPolicy) nextKey() (Key, error) {
	if len(p.q.ordering) == 0 || p.groupSize <= 0 {
		return Key{}, ErrQueueEmpty
	}
	p.cursor = (p.cursor + 1) % p.groupSize
	if p.cursor >= len(p.q.ordering) {
		return Key{}, ErrQueueEmpty
	}
	return p.q.ordering[p.cursor], nil
}

// decrementKey advances the group: once every key in the current group is
// exhausted, exactly those keys leave the ordering.
func (p *groupedPolicy) decrementKey(key Key, n int) (bool, error) {
	if !p.q.inOrdering(key) {
		return false, unknownKeyErr(key)
	}
	p.q.data[key].Trials -= n

	group := p.groupSize
	if group > len(p.q.ordering) {
		group = len(p.q.ordering)
	}
	for _, k := range p.q.ordering[:group] {
		if p.q.data[k].Trials > 0 {
			return false, nil
		}
	}
	for _, k := range append([]Key(nil), p.q.ordering[:group]...) {
		p.q.removeFromOrdering(k)
	}
	// The next group starts from its first key.
	p.cursor = -1
	return true, nil
}

func (p *groupedPolicy) appended(Key) {
	if p.grow {
		p.groupSize++
	}
}

func (p *groupedPolicy) countTrials() int { return p.q.sumTrials() }

// NewBlockedFIFO returns a grouped queue whose group spans every appended
// token: the group size grows with each Append. Insert does not grow it.
func NewBlockedFIFO(fs float64) *Queue {
	q := newQueue(fs)
	q.policy = &groupedPolicy{q: q, groupSize: 0, cursor: -1, grow: true}
	return q
}
