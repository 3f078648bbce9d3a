// Package responder picks the next sender of a scripted conversation.
//
// Every node runs its own Responder with the same seed and respondent set.
// Selection is a pure function of (seed, thread id, message id, previous
// sender, respondents), so the nodes agree on who speaks next without talking
// to each other. Heavier respondents are picked proportionally more often.
package responder

import (
	"Go2Mgen/internal/mgenerr"
	"crypto/md5"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

// Respondent is a node eligible to send the next message.
type Respondent struct {
	ID     string
	Addr   string
	Weight int
}

type slot struct {
	Respondent
	start int // index of the respondent's first entry in the pick array
}

// Responder holds the respondent set and its weight-expanded pick array.
type Responder struct {
	seed int64

	mu    sync.Mutex
	byID  map[string]*slot
	picks []*slot
}

// New returns an empty Responder for the given seed.
func New(seed int64) *Responder {
	return &Responder{seed: seed, byID: make(map[string]*slot)}
}

// Seed returns the shared seed.
func (r *Responder) Seed() int64 {
	return r.seed
}

// Add registers a respondent, replacing one with the same id. Weights below 1
// count as 1.
func (r *Responder) Add(id, addr string, weight int) {
	if weight < 1 {
		weight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &slot{Respondent: Respondent{ID: id, Addr: addr, Weight: weight}}
	r.picks = nil
}

// Len returns the number of respondents.
func (r *Responder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Respondents returns the respondents ordered by id.
func (r *Responder) Respondents() []Respondent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Respondent, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.Respondent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// buildLocked lays out each respondent's block in id order.
func (r *Responder) buildLocked() {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.picks = r.picks[:0]
	for _, id := range ids {
		s := r.byID[id]
		s.start = len(r.picks)
		for range s.Weight {
			r.picks = append(r.picks, s)
		}
	}
}

// hash maps (seed, thread, msg) onto a non-negative integer.
func (r *Responder) hash(threadID, msgID uint32) *big.Int {
	sum := md5.Sum(fmt.Appendf(nil, "%d-%d-%d", r.seed, threadID, msgID))
	return new(big.Int).SetBytes(sum[:])
}

// Select returns the respondent that sends message msgID of thread threadID.
// When prev is not empty, prev's own block is skipped so a node never answers
// itself unless it is the only respondent.
func (r *Responder) Select(threadID, msgID uint32, prev string) (Respondent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.picks) == 0 {
		r.buildLocked()
	}
	total := len(r.picks)
	if total == 0 {
		return Respondent{}, mgenerr.ErrNoRespondent
	}

	offset, pickLen := 0, total
	if prev != "" {
		p, ok := r.byID[prev]
		if !ok {
			return Respondent{}, fmt.Errorf("previous sender %q: %w", prev, mgenerr.ErrUnknownRespondent)
		}
		offset = p.start + p.Weight
		pickLen -= p.Weight
	}

	index := 0
	if pickLen > 0 {
		m := new(big.Int).Mod(r.hash(threadID, msgID), big.NewInt(int64(pickLen)))
		index = (offset + int(m.Int64())) % total
	}
	return r.picks[index].Respondent, nil
}

// SelectID is Select returning only the respondent id.
func (r *Responder) SelectID(threadID, msgID uint32, prev string) (string, error) {
	resp, err := r.Select(threadID, msgID, prev)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SelectAddr is Select returning only the respondent address.
func (r *Responder) SelectAddr(threadID, msgID uint32, prev string) (string, error) {
	resp, err := r.Select(threadID, msgID, prev)
	if err != nil {
		return "", err
	}
	return resp.Addr, nil
}
