// Package action defines the immutable message type carried by the dispatch bus.
package action

import (
	"github.com/fluxorio/actionbus/pkg/failfast"
)

// Tag is a classifier key used to match actions to subscriptions.
// Tags are explicit identifiers attached at construction; matching is a
// plain lookup, never reflection over a type hierarchy.
type Tag string

// Any is the universal tag. Every action carries it by default, so a
// subscription on Any observes all traffic.
const Any Tag = "*"

// Action is an immutable payload published through the dispatcher.
// Two dispatches of structurally equal actions are independent events;
// an action has no identity beyond its content.
type Action struct {
	typ     Tag
	payload interface{}
	tags    []Tag
	meta    map[string]string
}

// Option configures an Action at construction.
type Option func(*Action)

// WithTags replaces the default tag list. The list must be non-empty and is
// matched in the given order during fan-out.
func WithTags(tags ...Tag) Option {
	return func(a *Action) {
		failfast.If(len(tags) > 0, "action %q: tag list must be non-empty", a.typ)
		a.tags = make([]Tag, len(tags))
		copy(a.tags, tags)
	}
}

// WithMeta attaches a metadata entry at construction.
func WithMeta(key, value string) Option {
	return func(a *Action) {
		a.meta[key] = value
	}
}

// New creates an action of the given type. The default tag list is
// [typ, Any]: the exact type first, then the universal tag.
func New(typ Tag, payload interface{}, opts ...Option) *Action {
	failfast.If(typ != "", "action type tag must be non-empty")
	a := &Action{
		typ:     typ,
		payload: payload,
		tags:    []Tag{typ, Any},
		meta:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type returns the action's type tag.
func (a *Action) Type() Tag { return a.typ }

// Payload returns the application data carried by the action.
func (a *Action) Payload() interface{} { return a.payload }

// Tags returns a copy of the ordered classifier key list.
func (a *Action) Tags() []Tag {
	tags := make([]Tag, len(a.tags))
	copy(tags, a.tags)
	return tags
}

// Meta returns the metadata value for key, or "" when absent.
func (a *Action) Meta(key string) string { return a.meta[key] }

// WithMeta returns a copy of the action with one metadata entry replaced.
// The receiver is left untouched.
func (a *Action) WithMeta(key, value string) *Action {
	clone := &Action{
		typ:     a.typ,
		payload: a.payload,
		tags:    a.tags,
		meta:    make(map[string]string, len(a.meta)+1),
	}
	for k, v := range a.meta {
		clone.meta[k] = v
	}
	clone.meta[key] = value
	return clone
}

// WithPayload returns a copy of the action carrying a different payload.
// Interceptors use this to transform an action without mutating the original.
func (a *Action) WithPayload(payload interface{}) *Action {
	return &Action{
		typ:     a.typ,
		payload: payload,
		tags:    a.tags,
		meta:    a.meta,
	}
}
