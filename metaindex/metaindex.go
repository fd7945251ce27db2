package metaindex

import (
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/synopsis"
	"github.com/telescan/telescan/view"
)

// orderDegree is the B-tree branching factor for the ascending partition
// ID index. 32 matches google/btree's own benchmark default; the index
// holds one entry per partition, not per record, so tree depth stays
// shallow at any realistic partition count.
const orderDegree = 32

// MetaIndex maps partition UUIDs to their synopsis, answering "which
// partitions may match this expression?" (spec.md §4.5, invariant 6:
// every Lookup result is sorted ascending and duplicate-free). The
// ascending partition order is maintained in a btree.BTreeG rather than a
// plain sorted slice so that Add/Erase avoid an O(n) slice shift once a
// node tracks many thousands of partitions.
type MetaIndex struct {
	synopses map[uuid.UUID]*PartitionSynopsis
	layouts  map[uuid.UUID]schema.Layout
	order    *btree.BTreeG[uuid.UUID]
}

func New() *MetaIndex {
	return &MetaIndex{
		synopses: make(map[uuid.UUID]*PartitionSynopsis),
		layouts:  make(map[uuid.UUID]schema.Layout),
		order:    btree.NewG(orderDegree, less),
	}
}

// Add registers a new partition's synopsis, or replaces it if the UUID
// is already present (used by the coordinator's active-partition
// updates, spec.md §4.7 "meta_idx.add").
func (m *MetaIndex) Add(id uuid.UUID, layout schema.Layout, ps *PartitionSynopsis) {
	m.order.ReplaceOrInsert(id)
	m.synopses[id] = ps
	m.layouts[id] = layout
}

// Merge is an alias for Add used during startup recovery, where a
// partition header is read back off disk (spec.md §4.7 "Startup").
func (m *MetaIndex) Merge(id uuid.UUID, layout schema.Layout, ps *PartitionSynopsis) {
	m.Add(id, layout, ps)
}

// Erase removes a partition, e.g. after compaction or deletion.
func (m *MetaIndex) Erase(id uuid.UUID) {
	if _, ok := m.synopses[id]; !ok {
		return
	}
	delete(m.synopses, id)
	delete(m.layouts, id)
	m.order.Delete(id)
}

func less(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// orderedIDs returns every tracked partition, ascending.
func (m *MetaIndex) orderedIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, m.order.Len())
	m.order.Ascend(func(id uuid.UUID) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Size reports the number of partitions currently tracked.
func (m *MetaIndex) Size() int { return m.order.Len() }

// MemUsage sums every tracked partition's synopsis footprint (the
// telescan_metaindex_bytes metric, SPEC_FULL.md SUPPLEMENTED FEATURES).
func (m *MetaIndex) MemUsage() uint64 {
	var total uint64
	for _, ps := range m.synopses {
		total += ps.MemUsage()
	}
	return total
}

// Lookup returns the sorted, duplicate-free set of partitions that may
// satisfy e, applying the pruning rules of spec.md §4.5. e should
// already be normalized; Predicate/Const/Empty leaves are handled
// directly and Conjunction/Disjunction/Negation recurse.
func (m *MetaIndex) Lookup(e expr.Expression) []uuid.UUID {
	switch n := e.(type) {
	case expr.Empty:
		return m.orderedIDs()
	case expr.Const:
		if n.Value {
			return m.orderedIDs()
		}
		return nil
	case expr.Predicate:
		return m.lookupPredicate(n)
	case expr.Conjunction:
		return m.lookupConjunction(n)
	case expr.Disjunction:
		return m.lookupDisjunction(n)
	case expr.Negation:
		return m.lookupNegation(n)
	default:
		return m.orderedIDs()
	}
}

func (m *MetaIndex) lookupConjunction(n expr.Conjunction) []uuid.UUID {
	result := m.orderedIDs()
	for _, child := range n.Children {
		if len(result) == 0 {
			break
		}
		result = intersectSorted(result, m.Lookup(child))
	}
	return result
}

func (m *MetaIndex) lookupDisjunction(n expr.Disjunction) []uuid.UUID {
	var result []uuid.UUID
	for _, child := range n.Children {
		result = unionSorted(result, m.Lookup(child))
		if len(result) == m.order.Len() {
			break
		}
	}
	return result
}

// lookupNegation implements the conservative rule: synopses cannot
// reliably negate a possible match (a false positive would become a
// false negative), with the documented exception for Negatable
// synopses when the child is a single concrete predicate.
func (m *MetaIndex) lookupNegation(n expr.Negation) []uuid.UUID {
	if p, ok := n.Child.(expr.Predicate); ok {
		if result, ok := m.lookupNegatedPredicate(p); ok {
			return result
		}
	}
	return m.orderedIDs()
}

func (m *MetaIndex) lookupPredicate(p expr.Predicate) []uuid.UUID {
	qn, fieldType, rhs, matched := qualifiedField(p)
	if !matched {
		return m.orderedIDs()
	}
	var result []uuid.UUID
	for _, id := range m.orderedIDs() {
		if m.partitionMayMatch(id, qn, fieldType, p.Op, rhs) {
			result = append(result, id)
		}
	}
	return result
}

// qualifiedField reports the qualified field name, declared type, and
// RHS literal that p constrains, if any. The type is needed alongside
// the name because string fields are pruned through a type-level
// synopsis (spec.md §3) rather than a field-level one. #type and
// #field never reach here because tailor() resolves them to Const
// before the meta-index sees them.
func qualifiedField(p expr.Predicate) (name, fieldType string, rhs view.Value, ok bool) {
	de, ok := p.LHS.(expr.DataExtractor)
	if !ok {
		return "", "", nil, false
	}
	d, ok := p.RHS.(expr.Data)
	if !ok {
		return "", "", nil, false
	}
	return de.Name, de.Type, d.Value, true
}

func (m *MetaIndex) partitionMayMatch(id uuid.UUID, qn, fieldType string, o op.RelOp, rhs view.Value) bool {
	s, ok := m.synopses[id].Lookup(qn, fieldType)
	if !ok {
		// No synopsis for this field in this partition: cannot prune.
		return true
	}
	result := s.Lookup(o, rhs)
	return result == nil || *result
}

// lookupNegatedPredicate implements the Negatable exception: when the
// field's synopsis can answer the negated operator exactly (min-max,
// boolean pair), prune through the Negation instead of returning every
// partition.
func (m *MetaIndex) lookupNegatedPredicate(p expr.Predicate) ([]uuid.UUID, bool) {
	qn, fieldType, rhs, matched := qualifiedField(p)
	if !matched {
		return nil, false
	}
	var result []uuid.UUID
	for _, id := range m.orderedIDs() {
		s, ok := m.synopses[id].Lookup(qn, fieldType)
		if !ok {
			result = append(result, id)
			continue
		}
		neg, ok := s.(synopsis.Negatable)
		if !ok {
			result = append(result, id)
			continue
		}
		if r := neg.LookupNegated(p.Op, rhs); r != nil && !*r {
			continue
		}
		result = append(result, id)
	}
	return result, true
}

func intersectSorted(a, b []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case less(a[i], b[j]):
			i++
		default:
			j++
		}
	}
	return out
}

func unionSorted(a, b []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case less(a[i], b[j]):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
