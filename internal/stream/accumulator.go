// Package stream provides the stateful reducers that fold provider deltas
// into running totals during one streaming response.
package stream

import "sort"

// ContentAccumulator accumulates the content and thinking channels of a
// single response. One instance is scoped to one response and is driven from
// a single goroutine, so it carries no locking.
type ContentAccumulator struct {
	content   string
	thinking  string
	signature string
}

// AppendContent appends a content delta and returns the new running total.
func (a *ContentAccumulator) AppendContent(delta string) string {
	a.content += delta
	return a.content
}

// AppendThinking appends a thinking delta and returns the new running total.
func (a *ContentAccumulator) AppendThinking(delta string) string {
	a.thinking += delta
	return a.thinking
}

// SetSignature records the signature for the current thinking segment.
func (a *ContentAccumulator) SetSignature(sig string) {
	a.signature = sig
}

func (a *ContentAccumulator) Content() string   { return a.content }
func (a *ContentAccumulator) Thinking() string  { return a.thinking }
func (a *ContentAccumulator) Signature() string { return a.signature }

// ResetThinking clears the thinking text and signature. Invoked when a new
// thinking block begins, since segments do not span content blocks.
func (a *ContentAccumulator) ResetThinking() {
	a.thinking = ""
	a.signature = ""
}

// Reset clears all channels.
func (a *ContentAccumulator) Reset() {
	a.content = ""
	a.thinking = ""
	a.signature = ""
}

// ToolCallState is the accumulated state of one streamed tool call.
// Arguments is built by append-only concatenation of partial JSON fragments
// and is not guaranteed parseable until the call's terminal event arrives.
type ToolCallState struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallPartial is one delta's worth of tool-call data.
type ToolCallPartial struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallAccumulator merges streamed tool-call deltas keyed by their
// zero-based stream index.
type ToolCallAccumulator struct {
	calls map[int]*ToolCallState
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCallState)}
}

// Update creates or merges the entry at index. ID and name overwrite when
// supplied (they arrive once, at block start); arguments always append.
func (a *ToolCallAccumulator) Update(index int, partial ToolCallPartial) {
	call, ok := a.calls[index]
	if !ok {
		call = &ToolCallState{}
		a.calls[index] = call
	}
	if partial.ID != "" {
		call.ID = partial.ID
	}
	if partial.Name != "" {
		call.Name = partial.Name
	}
	if partial.Arguments != "" {
		call.Arguments += partial.Arguments
	}
}

// Get returns the call at index.
func (a *ToolCallAccumulator) Get(index int) (ToolCallState, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCallState{}, false
	}
	return *call, true
}

// All returns a snapshot copy of every accumulated call.
func (a *ToolCallAccumulator) All() map[int]ToolCallState {
	out := make(map[int]ToolCallState, len(a.calls))
	for i, call := range a.calls {
		out[i] = *call
	}
	return out
}

// Indexes returns the stream indexes in ascending order, for index-ordered
// flushing at turn completion.
func (a *ToolCallAccumulator) Indexes() []int {
	idx := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// HasCalls reports whether any tool call was accumulated.
func (a *ToolCallAccumulator) HasCalls() bool {
	return len(a.calls) > 0
}

// Clear removes all accumulated calls.
func (a *ToolCallAccumulator) Clear() {
	a.calls = make(map[int]*ToolCallState)
}
