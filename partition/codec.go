package partition

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/telescan/telescan/index"
	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/xerrors"
)

// Codec persists and restores a partition's value indexes, layout,
// ID range, and synopsis as one byte buffer (spec.md §4.6 "Persist...
// format delegated to an external encoder"). Multiple encodings can
// coexist behind this interface; GobCodec below is the reference
// implementation.
type Codec interface {
	Encode(w io.Writer, header PartitionHeader, indexBlobs map[string][]byte) error
	Decode(r io.Reader) (PartitionHeader, map[string][]byte, error)
}

// PartitionHeader is everything the meta-index needs to recover a
// partition without touching its value indexes: identity, layout,
// ID range, and a snapshot of its synopsis set (spec.md §4.7 "Startup...
// read the partition header to recover its synopsis").
type PartitionHeader struct {
	ID           uuid.UUID
	Layout       schema.Layout
	IDs          IDRange
	SynopsisBlob []byte // metaindex.PartitionSynopsis.MarshalBinary output
}

// GobCodec encodes with encoding/gob and compresses with
// github.com/golang/snappy, mirroring the teacher stack's snappy usage
// for compact on-disk block encoding.
type GobCodec struct{}

type gobEnvelope struct {
	Header PartitionHeader
	Blobs  map[string][]byte
}

func (GobCodec) Encode(w io.Writer, header PartitionHeader, indexBlobs map[string][]byte) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobEnvelope{Header: header, Blobs: indexBlobs}); err != nil {
		return xerrors.Wrap(err, "partition: gob encode")
	}
	compressed := snappy.Encode(nil, buf.Bytes())
	if _, err := w.Write(compressed); err != nil {
		return xerrors.Mark(err, xerrors.FilesystemError)
	}
	return nil
}

func (GobCodec) Decode(r io.Reader) (PartitionHeader, map[string][]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return PartitionHeader{}, nil, xerrors.Mark(err, xerrors.FilesystemError)
	}
	decompressed, err := snappy.Decode(nil, raw)
	if err != nil {
		return PartitionHeader{}, nil, xerrors.Mark(err, xerrors.FormatError)
	}
	var env gobEnvelope
	if err := gob.NewDecoder(bytes.NewReader(decompressed)).Decode(&env); err != nil {
		return PartitionHeader{}, nil, xerrors.Mark(err, xerrors.FormatError)
	}
	return env.Header, env.Blobs, nil
}

// MarshalIndexes serializes every Serializable column index, keyed by
// qualified field name, for a Codec to persist alongside the header.
func (p *Partition) MarshalIndexes() (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	blobs := make(map[string][]byte, len(p.indexes))
	for qn, idx := range p.indexes {
		s, ok := idx.(interface{ MarshalBinary() ([]byte, error) })
		if !ok {
			continue
		}
		b, err := s.MarshalBinary()
		if err != nil {
			return nil, xerrors.Wrap(err, "partition: marshal index "+qn)
		}
		blobs[qn] = b
	}
	return blobs, nil
}

// Header returns the portable identity/layout/range/synopsis snapshot a
// Codec persists, without the value indexes themselves.
func (p *Partition) Header() (PartitionHeader, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := PartitionHeader{ID: p.ID, Layout: p.Layout, IDs: p.IDs}
	if p.Synopsis == nil {
		return h, nil
	}
	blob, err := p.Synopsis.MarshalBinary()
	if err != nil {
		return PartitionHeader{}, xerrors.Wrap(err, "partition: marshal synopsis")
	}
	h.SynopsisBlob = blob
	return h, nil
}

// RestoreSynopsis rebuilds a partition's synopsis set from a header
// produced by Header, for use during startup recovery (spec.md §4.7
// "read the partition header to recover its synopsis").
func (p *Partition) RestoreSynopsis(h PartitionHeader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps := metaindex.NewPartitionSynopsis(p.Layout.Name, p.synCfg)
	if len(h.SynopsisBlob) > 0 {
		if err := ps.UnmarshalBinary(h.SynopsisBlob); err != nil {
			return xerrors.Wrap(err, "partition: restore synopsis")
		}
	}
	p.Synopsis = ps
	return nil
}

// Restore rebuilds a passive (read-only) partition from a header and
// its per-column index blobs, both produced by a prior Header/
// MarshalIndexes pair (spec.md §4.6 "Passive partition... loaded from
// disk"). A column whose blob is missing or whose type is not
// Serializable is skipped with no error: Lookup on that column then
// behaves as if the column had never been appended.
func Restore(h PartitionHeader, blobs map[string][]byte, synCfg metaindex.SynopsisConfig, limits Limits) (*Partition, error) {
	p := &Partition{
		ID:        h.ID,
		Layout:    h.Layout,
		IDs:       h.IDs,
		indexes:   make(map[string]index.ValueIndex, len(h.Layout.Fields)),
		synCfg:    synCfg,
		limits:    limits,
		sealed:    true,
		persisted: true,
	}
	if err := p.RestoreSynopsis(h); err != nil {
		return nil, err
	}
	for _, f := range h.Layout.Fields {
		if f.HasAttribute("skip") {
			continue
		}
		qn := f.QualifiedName(h.Layout.Name)
		blob, ok := blobs[qn]
		if !ok {
			continue
		}
		idx := newIndexFor(f.Type, limits)
		s, ok := idx.(index.Serializable)
		if !ok {
			continue
		}
		if err := s.UnmarshalBinary(blob); err != nil {
			return nil, xerrors.Wrap(xerrors.Mark(err, xerrors.FormatError), "partition: restore index "+qn)
		}
		p.indexes[qn] = idx
	}
	return p, nil
}
