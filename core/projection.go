package core

import "maps"

// Field names a Session field an adapter may support.
type Field string

const (
	FieldID           Field = "id"
	FieldBudget       Field = "budget"
	FieldMessages     Field = "messages"
	FieldAllowedTools Field = "allowed_tools"
	FieldExtension    Field = "extension"
)

// AllFields lists every projectable Session field.
var AllFields = []Field{FieldID, FieldBudget, FieldMessages, FieldAllowedTools, FieldExtension}

// Adapter translates between a Session and a consumer-owned aggregate T.
//
// Contract: ProjectFrom(ProjectTo(s)) equals s on every field for which
// Supports returns true, and Extension always passes through unchanged.
type Adapter[T any] interface {
	ProjectTo(s Session) T
	ProjectFrom(agg T) Session
	Supports(f Field) bool
}

// RoundTrip projects s out and back through a.
func RoundTrip[T any](a Adapter[T], s Session) Session {
	return a.ProjectFrom(a.ProjectTo(s))
}

// MapAdapter projects a Session into a flat map[string]any aggregate, the
// shape most workflow graphs keep their stage state in. Keys of the aggregate
// that do not name a supported field are consumer-owned and travel back in
// Session.Extension.
type MapAdapter struct {
	supported map[Field]bool
}

// NewMapAdapter creates an adapter supporting the given fields (all fields
// when none are given). Extension is always supported.
func NewMapAdapter(fields ...Field) *MapAdapter {
	if len(fields) == 0 {
		fields = AllFields
	}

	supported := make(map[Field]bool, len(fields)+1)
	for _, f := range fields {
		supported[f] = true
	}
	supported[FieldExtension] = true

	return &MapAdapter{supported: supported}
}

// Supports reports whether f survives a round trip.
func (a *MapAdapter) Supports(f Field) bool { return a.supported[f] }

// ProjectTo writes the supported fields and the extension entries into a
// fresh map. Extension keys never overwrite projected fields.
func (a *MapAdapter) ProjectTo(s Session) map[string]any {
	agg := make(map[string]any, len(s.Extension)+len(a.supported))

	for k, v := range s.Extension {
		agg[k] = v
	}

	if a.supported[FieldID] {
		agg[string(FieldID)] = s.ID
	}
	if a.supported[FieldBudget] {
		agg[string(FieldBudget)] = s.Budget
	}
	if a.supported[FieldMessages] {
		agg[string(FieldMessages)] = cloneMessages(s.Messages)
	}
	if a.supported[FieldAllowedTools] {
		agg[string(FieldAllowedTools)] = s.AllowedTools.Names()
	}

	// Extension keys shadowed by a projected field keep their value under a
	// reserved key.
	shadowed := map[string]any{}
	for k, v := range s.Extension {
		if a.isProjectedKey(k) {
			shadowed[k] = v
		}
	}
	if len(shadowed) > 0 {
		agg[shadowKey] = shadowed
	}

	return agg
}

const shadowKey = "__extension_shadowed"

func (a *MapAdapter) isProjectedKey(k string) bool {
	f := Field(k)
	return f != FieldExtension && a.supported[f]
}

// ProjectFrom rebuilds a Session from an aggregate.
func (a *MapAdapter) ProjectFrom(agg map[string]any) Session {
	var s Session

	for k, v := range agg {
		if k == shadowKey || a.isProjectedKey(k) {
			continue
		}
		if s.Extension == nil {
			s.Extension = map[string]any{}
		}
		s.Extension[k] = v
	}

	if shadowed, ok := agg[shadowKey].(map[string]any); ok {
		if s.Extension == nil {
			s.Extension = make(map[string]any, len(shadowed))
		}
		maps.Copy(s.Extension, shadowed)
	}

	if id, ok := agg[string(FieldID)].(string); ok && a.supported[FieldID] {
		s.ID = id
	}
	if b, ok := agg[string(FieldBudget)].(Budget); ok && a.supported[FieldBudget] {
		s.Budget = b
	}
	if msgs, ok := agg[string(FieldMessages)].([]Message); ok && a.supported[FieldMessages] {
		s.Messages = cloneMessages(msgs)
	}
	if tools, ok := agg[string(FieldAllowedTools)].([]string); ok && a.supported[FieldAllowedTools] {
		s.AllowedTools = NewToolSet(tools...)
	}

	return s
}
