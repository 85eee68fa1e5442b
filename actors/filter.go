package actors

import (
	"github.com/super-flat/pipeline/message"
)

// Predicate decides whether a rule accepts a message
type Predicate func(msg message.Message) bool

type rule struct {
	predicate Predicate
	target    Target
}

// Filter is an ordered routing table. The first rule accepting a message
// decides its only destination. Build it fully before handing it to an
// actor; it is read-only afterwards.
type Filter struct {
	rules []rule
}

// NewFilter returns an empty Filter
func NewFilter() *Filter {
	return &Filter{}
}

// Filter appends a rule sending messages accepted by predicate to target
func (f *Filter) Filter(predicate Predicate, target Target) *Filter {
	f.rules = append(f.rules, rule{predicate: predicate, target: target})
	return f
}

// Route returns the target of the first rule accepting msg, or nil
func (f *Filter) Route(msg message.Message) Target {
	for _, r := range f.rules {
		if r.predicate(msg) {
			return r.target
		}
	}
	return nil
}

// Targets returns every distinct target, in the order first referenced
func (f *Filter) Targets() []Target {
	seen := make(map[string]struct{}, len(f.rules))
	out := make([]Target, 0, len(f.rules))
	for _, r := range f.rules {
		if _, exists := seen[r.target.Name()]; exists {
			continue
		}
		seen[r.target.Name()] = struct{}{}
		out = append(out, r.target)
	}
	return out
}

// Len returns the number of rules
func (f *Filter) Len() int {
	return len(f.rules)
}

// AcceptAll is a predicate accepting every message
func AcceptAll(message.Message) bool {
	return true
}

// ByKey accepts records tagged with key
func ByKey(key string) Predicate {
	return func(msg message.Message) bool {
		record, ok := msg.(*message.RecordMessage)
		return ok && record.Key == key
	}
}

// ByKind accepts messages of the given kind
func ByKind(kind message.Kind) Predicate {
	return func(msg message.Message) bool {
		return msg.Kind() == kind
	}
}
