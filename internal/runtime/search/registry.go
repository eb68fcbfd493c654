package search

import (
	"sort"
	"time"
)

// Subscription is the record kept for a query between Subscribe and
// UnsubscribeAll.
type Subscription struct {
	Query          string    `json:"query"`
	APIKey         string    `json:"-"`
	RateLimit      int       `json:"rate_limit,omitempty"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	ContextCount   int       `json:"context_count"`
	SubscribedAt   time.Time `json:"subscribed_at"`

	onItem   func(Event)
	onError  func(Event)
	listener *listener
}

// Live reports whether the live subscription was acknowledged and a listener
// is routing notifications for this record.
func (s Subscription) Live() bool {
	return s.listener != nil
}

// Registry maps queries to their subscription. It has no locking of its own;
// the Manager guards it.
type Registry struct {
	subs map[string]*Subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

// Put stores sub under query, replacing any previous record.
func (r *Registry) Put(query string, sub *Subscription) {
	r.subs[query] = sub
}

func (r *Registry) Get(query string) (*Subscription, bool) {
	sub, ok := r.subs[query]
	return sub, ok
}

func (r *Registry) Clear() {
	clear(r.subs)
}

func (r *Registry) Len() int {
	return len(r.subs)
}

func (r *Registry) Empty() bool {
	return len(r.subs) == 0
}

// Snapshot returns copies of every record ordered by query.
func (r *Registry) Snapshot() []Subscription {
	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Query < out[j].Query })
	return out
}
