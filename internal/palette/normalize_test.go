package palette

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palette/internal/domain"
	"palette/internal/tool"
)

func TestNormalize_Document(t *testing.T) {
	doc := domain.Document{PageContent: "CEI pays partners", Metadata: map[string]any{"source": "cei.md", "chunk": 2}}

	got := Normalize(doc)
	assert.Equal(t, map[string]any{
		"page_content": "CEI pays partners",
		"metadata":     map[string]any{"source": "cei.md", "chunk": 2},
		"type":         "Document",
	}, got)

	list := Normalize([]domain.Document{doc, {PageContent: "DTH"}})
	require.IsType(t, []any{}, list)
	items := list.([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "DTH", items[1].(map[string]any)["page_content"])
	assert.Equal(t, map[string]any{}, items[1].(map[string]any)["metadata"])

	assert.Equal(t, got, Normalize(&doc))
}

func TestNormalize_StructsUseJSONNames(t *testing.T) {
	got := Normalize([]tool.Instance{{ID: "i-1", State: "running"}})
	items, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	rec, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "i-1", rec["instance_id"])
	assert.Equal(t, "running", rec["state"])
}

func TestNormalize_PassThrough(t *testing.T) {
	assert.Equal(t, "13", Normalize("13"))
	assert.Equal(t, 42, Normalize(42))
	assert.Equal(t, true, Normalize(true))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, []byte("raw"), Normalize([]byte("raw")))

	var nilDoc *domain.Document
	assert.Nil(t, Normalize(nilDoc))
	assert.Equal(t, []any{nil, "x"}, Normalize([]any{nilDoc, "x"}))
	assert.Equal(t, map[string]any{"doc": nil}, Normalize(map[string]any{"doc": nilDoc}))

	s := "pointer"
	assert.Equal(t, "pointer", Normalize(&s))

	ch := make(chan int)
	assert.Equal(t, KindOpaque, KindOf(ch))
	assert.Equal(t, ch, Normalize(ch))
}

func TestNormalize_SelfReferenceStopsAtDepthCap(t *testing.T) {
	loop := map[string]any{"name": "loop"}
	loop["self"] = loop

	var out any
	require.NotPanics(t, func() { out = Normalize(loop) })

	depth := 0
	for cur := out; ; depth++ {
		m, ok := cur.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "loop", m["name"])
		next := m["self"]
		if reflect.ValueOf(next).Pointer() == reflect.ValueOf(loop).Pointer() {
			break
		}
		cur = next
	}
	assert.Greater(t, depth, 0)
	assert.LessOrEqual(t, depth, maxNormalizeDepth+1)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		v    any
		want Kind
	}{
		{"x", KindScalar},
		{3.5, KindScalar},
		{time.Second, KindScalar},
		{domain.Document{}, KindKeyedRecord},
		{&domain.Document{}, KindKeyedRecord},
		{(*domain.Document)(nil), KindScalar},
		{map[string]int{"a": 1}, KindKeyedRecord},
		{map[int]string{1: "a"}, KindOpaque},
		{[]string{"a"}, KindOrderedCollection},
		{[2]int{1, 2}, KindOrderedCollection},
		{struct{ A int }{1}, KindKeyedRecord},
		{func() {}, KindOpaque},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.v), "%T", tt.v)
	}
}

func TestNormalizeSteps_KeepsOrder(t *testing.T) {
	steps := []domain.Step{
		{Action: domain.AgentAction{ToolName: "CEI Customer Engagement Incentive", ToolInput: "CEI"}, Result: []domain.Document{{PageContent: "a"}}},
		{Action: domain.AgentAction{ToolName: "Weather Tool", ToolInput: "Monday"}, Result: "10"},
	}
	got := NormalizeSteps(steps)
	require.Len(t, got, 2)
	assert.Equal(t, "CEI Customer Engagement Incentive", got[0].Action.ToolName)
	assert.Equal(t, "Weather Tool", got[1].Action.ToolName)
	assert.Equal(t, "10", got[1].Result)
	assert.Nil(t, NormalizeSteps(nil))
}

// buildResult assembles a nested value mixing documents, records,
// collections and scalars from generated parts.
func buildResult(contents []string, keys []string, n int, flag bool) any {
	docs := make([]domain.Document, 0, len(contents))
	for i, c := range contents {
		docs = append(docs, domain.Document{PageContent: c, Metadata: map[string]any{"index": i, "flag": flag}})
	}
	record := map[string]any{}
	for i, k := range keys {
		switch i % 3 {
		case 0:
			record[k] = docs
		case 1:
			record[k] = []any{n, k, flag, nil}
		default:
			record[k] = tool.Instance{ID: k, State: "stopped"}
		}
	}
	return []any{record, docs, n, flag, contents, &domain.Document{PageContent: "ptr"}}
}

func TestNormalize_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(contents []string, keys []string, n int, flag bool) bool {
			once := Normalize(buildResult(contents, keys, n, flag))
			twice := Normalize(once)
			return assert.ObjectsAreEqual(once, twice)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Identifier()),
		gen.IntRange(-1000, 1000),
		gen.Bool(),
	))

	properties.Property("step normalization is idempotent", prop.ForAll(
		func(contents []string, name string) bool {
			steps := []domain.Step{{
				Action: domain.AgentAction{ToolName: name, ToolInput: name},
				Result: buildResult(contents, []string{name}, len(contents), true),
			}}
			once := NormalizeSteps(steps)
			return assert.ObjectsAreEqual(once, NormalizeSteps(once))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
