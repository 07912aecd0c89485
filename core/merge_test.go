package core

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }

func TestMergeSession_Fields(t *testing.T) {
	base := Session{
		ID:           "s",
		Budget:       Budget{TimeRemainingMs: 100, TokenRemaining: 10},
		Messages:     []Message{{ID: "1"}},
		AllowedTools: NewToolSet("a", "b"),
		Extension:    map[string]any{"keep": true, "over": "base"},
	}

	patch := SessionPatch{
		Budget:       &BudgetPatch{TokenRemaining: i64(4)},
		Messages:     []Message{{ID: "2"}},
		AllowedTools: NewToolSet("b", "c"),
		ToolPolicy:   ToolPolicyIntersect,
		Extension:    map[string]any{"over": "patch", "new": 1},
	}

	got := MergeSession(base, patch)

	assert.Equal(t, "s", got.ID)
	assert.Equal(t, Budget{TimeRemainingMs: 100, TokenRemaining: 4}, got.Budget)
	assert.Equal(t, []Message{{ID: "1"}, {ID: "2"}}, got.Messages)
	assert.Equal(t, ToolSet{"b"}, got.AllowedTools)
	assert.Equal(t, map[string]any{"keep": true, "over": "patch", "new": 1}, got.Extension)

	// inputs untouched
	assert.Len(t, base.Messages, 1)
	assert.Equal(t, "base", base.Extension["over"])
}

func TestMergeSession_ToolPolicies(t *testing.T) {
	base := Session{ID: "s", AllowedTools: NewToolSet("a", "b")}
	patchTools := NewToolSet("b", "c")

	tests := []struct {
		policy ToolConflictPolicy
		want   ToolSet
	}{
		{ToolPolicyUnset, ToolSet{"a", "b"}},
		{ToolPolicyReplace, ToolSet{"b", "c"}},
		{ToolPolicyUnion, ToolSet{"a", "b", "c"}},
		{ToolPolicyIntersect, ToolSet{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got := MergeSession(base, SessionPatch{AllowedTools: patchTools, ToolPolicy: tt.policy})
			assert.Equal(t, tt.want, got.AllowedTools)
		})
	}
}

func TestMergeSession_ClampsNegativeBudget(t *testing.T) {
	got := MergeSession(Session{ID: "s"}, SessionPatch{Budget: &BudgetPatch{TimeRemainingMs: i64(-3)}})
	assert.Equal(t, int64(0), got.Budget.TimeRemainingMs)
}

func TestParseToolConflictPolicy(t *testing.T) {
	for _, p := range []ToolConflictPolicy{ToolPolicyUnset, ToolPolicyReplace, ToolPolicyUnion, ToolPolicyIntersect} {
		got, err := ParseToolConflictPolicy(p.String())
		assert.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseToolConflictPolicy("merge")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func genMessages() gopter.Gen {
	return gen.SliceOf(gen.Identifier()).Map(func(ids []string) []Message {
		if len(ids) == 0 {
			return nil
		}
		out := make([]Message, len(ids))
		for i, id := range ids {
			out[i] = Message{ID: id, Role: "tool", Text: id}
		}
		return out
	})
}

func genExtension() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.Int()).Map(func(m map[string]int) map[string]any {
		if len(m) == 0 {
			return nil
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	})
}

func genSession() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		genMessages(),
		gen.SliceOf(gen.Identifier()),
		genExtension(),
	).Map(func(v []any) Session {
		return Session{
			ID:           v[0].(string),
			Budget:       Budget{TimeRemainingMs: v[1].(int64), TokenRemaining: v[2].(int64)},
			Messages:     v[3].([]Message),
			AllowedTools: NewToolSet(v[4].([]string)...),
			Extension:    v[5].(map[string]any),
		}
	})
}

func TestMergeSession_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("empty patch is identity", prop.ForAll(
		func(s Session) bool {
			return reflect.DeepEqual(MergeSession(s, SessionPatch{}), s)
		},
		genSession(),
	))

	properties.Property("merge is associative over full patches", prop.ForAll(
		func(a, b, c Session) bool {
			left := MergeSession(MergeSession(a, PatchFrom(b)), PatchFrom(c))
			right := MergeSession(a, PatchFrom(MergeSession(b, PatchFrom(c))))
			return reflect.DeepEqual(left, right)
		},
		genSession(), genSession(), genSession(),
	))

	properties.Property("messages concatenate in order", prop.ForAll(
		func(s Session, m1, m2 []Message) bool {
			got := MergeSession(MergeSession(s, SessionPatch{Messages: m1}), SessionPatch{Messages: m2})
			want := append(append(append([]Message{}, s.Messages...), m1...), m2...)
			return len(got.Messages) == len(want) && (len(want) == 0 || reflect.DeepEqual(got.Messages, want))
		},
		genSession(), genMessages(), genMessages(),
	))

	properties.Property("id never changes", prop.ForAll(
		func(a, b Session) bool {
			return MergeSession(a, PatchFrom(b)).ID == a.ID
		},
		genSession(), genSession(),
	))

	properties.TestingRun(t)
}
