// Package notifytest provides a recording notify.Sink for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/foxseedlab/mentorpack/internal/notify"
)

type Recorder struct {
	mu    sync.Mutex
	facts []notify.Fact

	// Err, when set, is returned by Send after the fact is recorded.
	Err error
}

var _ notify.Sink = (*Recorder)(nil)

func (r *Recorder) Send(_ context.Context, fact notify.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = append(r.facts, fact)
	return r.Err
}

func (r *Recorder) Facts() []notify.Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Fact(nil), r.facts...)
}

// OfType returns the recorded facts of type t in send order.
func (r *Recorder) OfType(t notify.FactType) []notify.Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Fact
	for _, f := range r.facts {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = nil
}
