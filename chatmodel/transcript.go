package chatmodel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// EntryKind is the tag of a transcript entry.
type EntryKind string

const (
	KindUserMessage    EntryKind = "user_message"
	KindModelUtterance EntryKind = "model_utterance"
	KindToolCall       EntryKind = "tool_call"
	KindToolResult     EntryKind = "tool_result"
)

// Entry is one step in the interaction history.
// It is one of UserMessage, ModelUtterance, ToolCall or ToolResult.
type Entry interface {
	Kind() EntryKind
	isEntry()
}

// UserMessage is the input of the user.
type UserMessage struct {
	Text string `json:"text" yaml:"text"`
}

func (UserMessage) Kind() EntryKind { return KindUserMessage }
func (UserMessage) isEntry()        {}

// ModelUtterance is a turn of the model.
// When Requested is empty and ParseError is not set, the utterance is the final answer.
type ModelUtterance struct {
	Text      string     `json:"text,omitempty" yaml:"text,omitempty"`
	Requested []ToolCall `json:"requested,omitempty" yaml:"requested,omitempty"`
	// ParseError is set when the output could not be parsed,
	// and was recorded to be re-offered to the model.
	ParseError string `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`
}

func (ModelUtterance) Kind() EntryKind { return KindModelUtterance }
func (ModelUtterance) isEntry()        {}

// IsFinal returns true if the utterance is a terminal answer.
func (u ModelUtterance) IsFinal() bool {
	return len(u.Requested) == 0 && u.ParseError == ""
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id" yaml:"id" toml:"id"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	Arguments string `json:"arguments" yaml:"arguments" toml:"arguments"`
}

func (ToolCall) Kind() EntryKind { return KindToolCall }
func (ToolCall) isEntry()        {}

// ToolResult is the outcome of a tool call, either Value or Err.
type ToolResult struct {
	CallID string `json:"call_id" yaml:"call_id"`
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Err    error  `json:"-" yaml:"-"`
}

func (ToolResult) Kind() EntryKind { return KindToolResult }
func (ToolResult) isEntry()        {}

// Failed returns true if the tool call failed.
func (r ToolResult) Failed() bool {
	return r.Err != nil
}

// Content returns the content offered to the model,
// the error is serialized so the model may correct the call.
func (r ToolResult) Content() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Value
}

// Transcript is the ordered, append-only history of a run.
// It is safe for concurrent reads while the loop appends.
type Transcript struct {
	lock    sync.RWMutex
	entries []Entry
	// pending tracks tool calls without results
	pending []ToolCall
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds entries in order.
// Every ToolCall must be followed by exactly one ToolResult with the same
// call ID and tool name before the next ModelUtterance.
func (t *Transcript) Append(entries ...Entry) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, e := range entries {
		switch v := e.(type) {
		case UserMessage:
			if len(t.pending) > 0 {
				return errors.Wrapf(ErrTranscriptInvariant, "user message while %d tool calls are pending", len(t.pending))
			}
		case ModelUtterance:
			if len(t.pending) > 0 {
				return errors.Wrapf(ErrTranscriptInvariant, "model utterance while %d tool calls are pending", len(t.pending))
			}
		case ToolCall:
			if v.ID == "" {
				return errors.Wrap(ErrTranscriptInvariant, "tool call without ID")
			}
			for _, p := range t.pending {
				if p.ID == v.ID {
					return errors.Wrapf(ErrTranscriptInvariant, "duplicate tool call ID %s", v.ID)
				}
			}
			t.pending = append(t.pending, v)
		case ToolResult:
			idx := -1
			for i, p := range t.pending {
				if p.ID == v.CallID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return errors.Wrapf(ErrTranscriptInvariant, "tool result for unknown call %s", v.CallID)
			}
			if t.pending[idx].Name != v.Name {
				return errors.Wrapf(ErrTranscriptInvariant, "tool result %s references %q, call was %q", v.CallID, v.Name, t.pending[idx].Name)
			}
			t.pending = append(t.pending[:idx], t.pending[idx+1:]...)
		default:
			return errors.Wrapf(ErrTranscriptInvariant, "unsupported entry %T", e)
		}
		t.entries = append(t.entries, e)
	}
	return nil
}

// Entries returns a copy of the entries.
func (t *Transcript) Entries() []Entry {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.entries)
}

// Pending returns the number of tool calls without results.
func (t *Transcript) Pending() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.pending)
}

// Last returns the last entry, or nil.
func (t *Transcript) Last() Entry {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if len(t.entries) == 0 {
		return nil
	}
	return t.entries[len(t.entries)-1]
}

// Clone returns a snapshot of the transcript.
func (t *Transcript) Clone() *Transcript {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return &Transcript{
		entries: append([]Entry(nil), t.entries...),
		pending: append([]ToolCall(nil), t.pending...),
	}
}

// Count returns the number of entries of the given kind.
func (t *Transcript) Count(kind EntryKind) int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

// String returns a printable form of the transcript.
func (t *Transcript) String() string {
	var buf strings.Builder
	for _, e := range t.Entries() {
		switch v := e.(type) {
		case UserMessage:
			fmt.Fprintf(&buf, "User: %s\n", v.Text)
		case ModelUtterance:
			switch {
			case v.ParseError != "":
				fmt.Fprintf(&buf, "Model (unparsed): %s\n", v.Text)
			case v.IsFinal():
				fmt.Fprintf(&buf, "Model (final): %s\n", v.Text)
			default:
				fmt.Fprintf(&buf, "Model: %s\n", v.Text)
			}
		case ToolCall:
			fmt.Fprintf(&buf, "Call %s: %s(%s)\n", v.ID, v.Name, v.Arguments)
		case ToolResult:
			fmt.Fprintf(&buf, "Result %s: %s\n", v.CallID, v.Content())
		}
	}
	return buf.String()
}

// Record is the serializable form of an entry.
type Record struct {
	Kind EntryKind `json:"kind" yaml:"kind" toml:"kind"`
	Text string    `json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`
	// Calls are the requested calls of a model utterance
	Calls      []ToolCall `json:"calls,omitempty" yaml:"calls,omitempty" toml:"calls,omitempty"`
	ParseError string     `json:"parse_error,omitempty" yaml:"parse_error,omitempty" toml:"parse_error,omitempty"`
	CallID     string     `json:"call_id,omitempty" yaml:"call_id,omitempty" toml:"call_id,omitempty"`
	Tool       string     `json:"tool,omitempty" yaml:"tool,omitempty" toml:"tool,omitempty"`
	Arguments  string     `json:"arguments,omitempty" yaml:"arguments,omitempty" toml:"arguments,omitempty"`
	Value      string     `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// Records returns the serializable form of the transcript,
// used for dumps and comparisons.
func (t *Transcript) Records() []Record {
	entries := t.Entries()
	list := make([]Record, 0, len(entries))
	for _, e := range entries {
		r := Record{Kind: e.Kind()}
		switch v := e.(type) {
		case UserMessage:
			r.Text = v.Text
		case ModelUtterance:
			r.Text = v.Text
			r.Calls = v.Requested
			r.ParseError = v.ParseError
		case ToolCall:
			r.CallID = v.ID
			r.Tool = v.Name
			r.Arguments = v.Arguments
		case ToolResult:
			r.CallID = v.CallID
			r.Tool = v.Name
			r.Value = v.Value
			if v.Err != nil {
				r.Error = v.Err.Error()
			}
		}
		list = append(list, r)
	}
	return list
}
