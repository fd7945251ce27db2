package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/schema"
)

func connLayout() schema.Layout {
	return schema.Layout{
		Name: "zeek.conn",
		Fields: []schema.Field{
			{Name: "id.orig_h", Type: "addr"},
			{Name: "id.resp_h", Type: "addr"},
			{Name: "service", Type: "string", Attributes: []string{"skip"}},
			{Name: "ts", Type: "time", Attributes: []string{"timestamp"}},
		},
	}
}

func TestQualifiedNameAndHasAttribute(t *testing.T) {
	l := connLayout()
	f, ok := l.FieldByName("service")
	require.True(t, ok)
	require.Equal(t, "zeek.conn.service", f.QualifiedName(l.Name))
	require.True(t, f.HasAttribute("skip"))
	require.False(t, f.HasAttribute("timestamp"))
}

func TestFieldsByTypeAndAttribute(t *testing.T) {
	l := connLayout()
	require.Len(t, l.FieldsByType("addr"), 2)
	require.Len(t, l.FieldsByAttribute("timestamp"), 1)
	require.Equal(t, "ts", l.FieldsByAttribute("timestamp")[0].Name)
}

// #field suffix matching is a plain case-sensitive suffix comparison
// over the qualified name, not a glob (SPEC_FULL.md SUPPLEMENTED FEATURES).
func TestFieldsBySuffixExactSuffix(t *testing.T) {
	l := connLayout()
	got := l.FieldsBySuffix("orig_h")
	require.Len(t, got, 1)
	require.Equal(t, "id.orig_h", got[0].Name)

	require.Empty(t, l.FieldsBySuffix("Orig_H"))
}
