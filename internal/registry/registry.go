package registry

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/jmehdipour/simbase-hub/internal/model"
)

// Registry holds the latest PollResult behind a replace-only slot and fans
// publish notifications out to subscribers. Readers never trigger network
// activity; until the next publish lands they see the previous result in
// full, never a partial mix.
type Registry struct {
	latest    atomic.Pointer[model.PollResult]
	nextID    atomic.Uint64
	listeners *xsync.Map[uint64, func(*model.PollResult)]
}

func New() *Registry {
	return &Registry{
		listeners: xsync.NewMap[uint64, func(*model.PollResult)](),
	}
}

// Publish installs pr as the latest result and notifies subscribers on the
// calling goroutine. pr must be fully built; it is shared from here on.
func (r *Registry) Publish(pr *model.PollResult) {
	r.latest.Store(pr)
	r.listeners.Range(func(_ uint64, fn func(*model.PollResult)) bool {
		fn(pr)
		return true
	})
}

// Latest returns the current result, or nil before the first publish.
func (r *Registry) Latest() *model.PollResult {
	return r.latest.Load()
}

// Sims returns all records of the latest result in ascending ICCID order.
func (r *Registry) Sims() []model.SimRecord {
	pr := r.latest.Load()
	if pr == nil {
		return nil
	}
	return pr.Sims
}

// Sim looks up one record by ICCID in the latest result.
func (r *Registry) Sim(iccid string) (model.SimRecord, bool) {
	pr := r.latest.Load()
	if pr == nil {
		return model.SimRecord{}, false
	}
	return pr.Sim(iccid)
}

// Account returns the aggregate snapshot of the latest result; false before
// the first publish.
func (r *Registry) Account() (model.AccountSnapshot, bool) {
	pr := r.latest.Load()
	if pr == nil {
		return model.AccountSnapshot{}, false
	}
	return pr.Account, true
}

// Subscribe registers fn to run after every publish and returns the
// unsubscribe func. fn runs on the publisher goroutine and must not block.
func (r *Registry) Subscribe(fn func(*model.PollResult)) func() {
	id := r.nextID.Add(1)
	r.listeners.Store(id, fn)
	return func() {
		r.listeners.Delete(id)
	}
}
