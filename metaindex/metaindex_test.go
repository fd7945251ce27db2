package metaindex_test

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/view"
)

func addrField() schema.Field {
	return schema.Field{Name: "src_ip", Type: "addr", Offset: 0}
}

func addr(s string) view.Address {
	return view.AddressFromNetIP(net.ParseIP(s))
}

// S5 — meta-index pruning: P1 only holds 10.0.0.0/8 addresses, P2 only
// 192.168.0.0/16; looking up :addr == 10.0.0.5 must return at most [P1]
// and must never prune P1.
func TestMetaIndexBloomPruning(t *testing.T) {
	layout := schema.Layout{Name: "conn", Fields: []schema.Field{addrField()}}
	field := layout.Fields[0]

	p1 := metaindex.NewPartitionSynopsis(layout.Name, metaindex.SynopsisConfig{})
	p1.Add(field, addr("10.0.0.1"))
	p1.Add(field, addr("10.0.0.5"))

	p2 := metaindex.NewPartitionSynopsis(layout.Name, metaindex.SynopsisConfig{})
	p2.Add(field, addr("192.168.1.1"))

	id1, id2 := uuid.New(), uuid.New()
	mi := metaindex.New()
	mi.Add(id1, layout, p1)
	mi.Add(id2, layout, p2)

	qn := field.QualifiedName(layout.Name)
	pred := expr.Predicate{
		LHS: expr.DataExtractor{Type: "addr", Offset: 0, Name: qn},
		Op:  op.Equal,
		RHS: expr.Data{Value: addr("10.0.0.5")},
	}

	result := mi.Lookup(pred)
	require.Contains(t, result, id1)
	require.LessOrEqual(t, len(result), 2)
}

// Invariant 6: Lookup results are sorted ascending and duplicate-free.
func TestMetaIndexLookupSorted(t *testing.T) {
	mi := metaindex.New()
	layout := schema.Layout{Name: "conn"}
	for i := 0; i < 5; i++ {
		mi.Add(uuid.New(), layout, metaindex.NewPartitionSynopsis(layout.Name, metaindex.SynopsisConfig{}))
	}
	result := mi.Lookup(expr.Empty{})
	require.Len(t, result, 5)
	for i := 1; i < len(result); i++ {
		require.True(t, lessUUID(result[i-1], result[i]))
	}
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func TestMetaIndexConjunctionShortCircuits(t *testing.T) {
	mi := metaindex.New()
	layout := schema.Layout{Name: "conn"}
	mi.Add(uuid.New(), layout, metaindex.NewPartitionSynopsis(layout.Name, metaindex.SynopsisConfig{}))

	e := expr.Conjunction{Children: []expr.Expression{expr.Const{Value: false}, expr.Empty{}}}
	require.Empty(t, mi.Lookup(e))
}

// Two distinct string fields share one type-level Bloom filter: adding a
// value through one field must make it visible to a lookup against the
// other (spec.md §3 "String fields use type-level synopses").
func TestPartitionSynopsisStringFieldsShareTypeSynopsis(t *testing.T) {
	service := schema.Field{Name: "service", Type: "string", Offset: 0}
	proto := schema.Field{Name: "proto", Type: "string", Offset: 1}

	ps := metaindex.NewPartitionSynopsis("conn", metaindex.SynopsisConfig{})
	ps.Add(service, view.String_("http"))

	require.Empty(t, ps.FieldSynopses)
	require.Len(t, ps.TypeSynopses, 1)

	s, ok := ps.Lookup(proto.QualifiedName("conn"), proto.Type)
	require.True(t, ok)
	result := s.Lookup(op.Equal, view.String_("http"))
	require.True(t, result == nil || *result)
}
