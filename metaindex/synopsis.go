// Package metaindex implements the partition-aware meta-index: per-partition
// synopses and the lookup that prunes candidate partitions before a full
// per-column scan (spec.md §4.3, §4.5).
package metaindex

import (
	"bytes"
	"encoding/gob"

	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/synopsis"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// SynopsisConfig sizes newly created Bloom filters. FPRate is the
// meta-index-wide default (spec.md §6 "meta-index-fp-rate"); AddressFPRate
// and StringFPRate override it per type when set. The zero value falls
// back to synopsis.DefaultFalsePositiveRate and a 4096-element estimate.
type SynopsisConfig struct {
	MaxElements   uint64
	FPRate        float64
	AddressFPRate float64
	StringFPRate  float64
}

func (c SynopsisConfig) maxElements() uint64 {
	if c.MaxElements == 0 {
		return 4096
	}
	return c.MaxElements
}

// fpRateOr resolves a type-specific rate, falling back to the
// meta-index-wide FPRate and finally to the library default.
func (c SynopsisConfig) fpRateOr(specific float64) float64 {
	if specific != 0 {
		return specific
	}
	if c.FPRate != 0 {
		return c.FPRate
	}
	return synopsis.DefaultFalsePositiveRate
}

func (c SynopsisConfig) addressFPRate() float64 { return c.fpRateOr(c.AddressFPRate) }

func (c SynopsisConfig) stringFPRate() float64 { return c.fpRateOr(c.StringFPRate) }

// PartitionSynopsis holds two synopsis maps per spec.md §3's "Partition
// synopsis" model: FieldSynopses, keyed by qualified field name
// ("<layout>.<field>"), for every non-string type; and TypeSynopses,
// keyed by declared type name, for string fields. Keying string fields
// by type rather than by field means every string field sharing a
// declared type (e.g. two distinct columns both typed "string") feeds
// the same Bloom filter, deduplicating the filter's element budget
// across them instead of spending it once per field. Both maps are
// populated lazily on first Add (spec.md §4.6 "create on first sight").
type PartitionSynopsis struct {
	Layout        string
	FieldSynopses map[string]synopsis.Synopsis
	TypeSynopses  map[string]synopsis.Synopsis
	cfg           SynopsisConfig
}

// NewPartitionSynopsis returns an empty synopsis set for one partition's
// layout.
func NewPartitionSynopsis(layoutName string, cfg SynopsisConfig) *PartitionSynopsis {
	return &PartitionSynopsis{
		Layout:        layoutName,
		FieldSynopses: make(map[string]synopsis.Synopsis),
		TypeSynopses:  make(map[string]synopsis.Synopsis),
		cfg:           cfg,
	}
}

// Add feeds one field's value into its synopsis. String-typed fields
// route through TypeSynopses, shared across every field of that type;
// every other field gets its own entry in FieldSynopses, constructed via
// newSynopsisFor on first sight.
func (ps *PartitionSynopsis) Add(field schema.Field, v view.Value) {
	if field.Type == "string" {
		s, ok := ps.TypeSynopses[field.Type]
		if !ok {
			s = synopsis.NewBloom(ps.cfg.maxElements(), ps.cfg.stringFPRate())
			ps.TypeSynopses[field.Type] = s
		}
		s.Add(v)
		return
	}

	qn := field.QualifiedName(ps.Layout)
	s, ok := ps.FieldSynopses[qn]
	if !ok {
		s = ps.newSynopsisFor(field)
		if s == nil {
			return
		}
		ps.FieldSynopses[qn] = s
	}
	s.Add(v)
}

// Lookup returns the synopsis governing qn, routing string fields
// through TypeSynopses by fieldType and every other field through
// FieldSynopses by qn (spec.md §3).
func (ps *PartitionSynopsis) Lookup(qn, fieldType string) (synopsis.Synopsis, bool) {
	if fieldType == "string" {
		s, ok := ps.TypeSynopses[fieldType]
		return s, ok
	}
	s, ok := ps.FieldSynopses[qn]
	return s, ok
}

// newSynopsisFor picks the synopsis variant per spec.md §4.3: min-max
// for ordered scalars, boolean pair for bool, Bloom for addresses (the
// "string" case is handled in Add before newSynopsisFor is ever
// reached, since it is keyed by type rather than by field). List and
// enum fields get no synopsis (lookup falls back to "cannot prune" for
// them, per §4.5 "If no field has a synopsis").
func (ps *PartitionSynopsis) newSynopsisFor(field schema.Field) synopsis.Synopsis {
	switch field.Type {
	case "addr", "subnet":
		return synopsis.NewBloom(ps.cfg.maxElements(), ps.cfg.addressFPRate())
	case "int", "count", "real", "duration", "time":
		return &synopsis.MinMax{}
	case "bool":
		return &synopsis.BoolPair{}
	default:
		return nil
	}
}

// MemUsage sums the byte footprint of every field and type synopsis,
// the value the SUPPLEMENTED FEATURES section's telescan_metaindex_bytes
// metric reports per partition.
func (ps *PartitionSynopsis) MemUsage() uint64 {
	var total uint64
	for _, s := range ps.FieldSynopses {
		total += s.MemUsage()
	}
	for _, s := range ps.TypeSynopses {
		total += s.MemUsage()
	}
	return total
}

// Shrink compacts every shrinkable field and type synopsis once a
// partition is decommissioned and will never receive another Add
// (spec.md §4.6 "persist").
func (ps *PartitionSynopsis) Shrink() {
	for _, s := range ps.FieldSynopses {
		if sh, ok := s.(synopsis.Shrinkable); ok {
			sh.Shrink()
		}
	}
	for _, s := range ps.TypeSynopses {
		if sh, ok := s.(synopsis.Shrinkable); ok {
			sh.Shrink()
		}
	}
}

type binaryCodec interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

type synopsisEntry struct {
	Kind string
	Data []byte
}

func kindOf(s synopsis.Synopsis) string {
	switch s.(type) {
	case *synopsis.Bloom:
		return "bloom"
	case *synopsis.MinMax:
		return "minmax"
	case *synopsis.BoolPair:
		return "boolpair"
	default:
		return ""
	}
}

func encodeSynopses(m map[string]synopsis.Synopsis, label string) (map[string]synopsisEntry, error) {
	entries := make(map[string]synopsisEntry, len(m))
	for key, s := range m {
		bc, ok := s.(binaryCodec)
		if !ok {
			continue
		}
		data, err := bc.MarshalBinary()
		if err != nil {
			return nil, xerrors.Wrap(err, "metaindex: marshal "+label+" synopsis "+key)
		}
		entries[key] = synopsisEntry{Kind: kindOf(s), Data: data}
	}
	return entries, nil
}

func decodeSynopses(entries map[string]synopsisEntry) map[string]synopsis.Synopsis {
	out := make(map[string]synopsis.Synopsis, len(entries))
	for key, e := range entries {
		var s synopsis.Synopsis
		switch e.Kind {
		case "bloom":
			s = &synopsis.Bloom{}
		case "minmax":
			s = &synopsis.MinMax{}
		case "boolpair":
			s = &synopsis.BoolPair{}
		default:
			continue
		}
		bc, ok := s.(binaryCodec)
		if !ok {
			continue
		}
		if err := bc.UnmarshalBinary(e.Data); err != nil {
			continue
		}
		out[key] = s
	}
	return out
}

// MarshalBinary snapshots both the field-level and type-level synopses
// into a single buffer so the coordinator can persist a partition's
// synopsis set inside its header (spec.md §4.6 "Persist", §4.7 "read the
// partition header to recover its synopsis").
func (ps *PartitionSynopsis) MarshalBinary() ([]byte, error) {
	fieldEntries, err := encodeSynopses(ps.FieldSynopses, "field")
	if err != nil {
		return nil, err
	}
	typeEntries, err := encodeSynopses(ps.TypeSynopses, "type")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(struct {
		Layout       string
		FieldEntries map[string]synopsisEntry
		TypeEntries  map[string]synopsisEntry
	}{Layout: ps.Layout, FieldEntries: fieldEntries, TypeEntries: typeEntries}); err != nil {
		return nil, xerrors.Wrap(err, "metaindex: encode synopsis set")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a synopsis set snapshotted by MarshalBinary.
// cfg only matters for synopsis kinds created lazily by Add after
// restore; restored synopses keep whatever state they were snapshotted
// with regardless of cfg.
func (ps *PartitionSynopsis) UnmarshalBinary(data []byte) error {
	var wire struct {
		Layout       string
		FieldEntries map[string]synopsisEntry
		TypeEntries  map[string]synopsisEntry
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return xerrors.Mark(err, xerrors.FormatError)
	}
	ps.Layout = wire.Layout
	ps.FieldSynopses = decodeSynopses(wire.FieldEntries)
	ps.TypeSynopses = decodeSynopses(wire.TypeEntries)
	return nil
}
