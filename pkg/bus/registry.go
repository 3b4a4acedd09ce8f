package bus

import (
	"sort"

	"github.com/fluxorio/actionbus/pkg/action"
)

// registry maps a classifier tag to its subscriptions, kept sorted by
// (priority, id) ascending. It carries no lock of its own: every access is
// serialized by the dispatcher's instance lock, which is also what keeps
// mutation mutually exclusive with an in-progress fan-out.
type registry struct {
	subs map[action.Tag][]*Subscription
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[action.Tag][]*Subscription),
	}
}

// insert adds sub to its tag's ordered set.
func (r *registry) insert(sub *Subscription) {
	subs := append(r.subs[sub.tag], sub)

	// (priority, id) ascending; ids are unique so the order is total.
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].id < subs[j].id
	})

	r.subs[sub.tag] = subs
}

// remove deletes sub from its tag's set, dropping the key entirely when the
// set empties. Returns false when sub was not registered.
func (r *registry) remove(sub *Subscription) bool {
	subs := r.subs[sub.tag]
	for i, s := range subs {
		if s == sub {
			r.subs[sub.tag] = append(subs[:i], subs[i+1:]...)
			if len(r.subs[sub.tag]) == 0 {
				delete(r.subs, sub.tag)
			}
			return true
		}
	}
	return false
}

// snapshot returns a copy of the ordered set for tag, or nil when the tag has
// no subscriptions. Fan-out iterates the copy so a disposal triggered from
// inside a callback cannot disturb the iteration.
func (r *registry) snapshot(tag action.Tag) []*Subscription {
	subs := r.subs[tag]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}

// all returns every registered subscription.
func (r *registry) all() []*Subscription {
	var out []*Subscription
	for _, subs := range r.subs {
		out = append(out, subs...)
	}
	return out
}
