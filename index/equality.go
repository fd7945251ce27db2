package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/telescan/telescan/bitmap"
)

// equalityIndex is an equality-coded bitmap index over a small universe
// of comparable keys: one bitmap per distinct key ever seen. It backs
// the length index (string/list), the enum index, and the ordered and
// port indexes (spec.md §3 "Enumeration index" and §4.2.3's length
// index). The boolean index keeps a single bitmap of true rows instead.
type equalityIndex[K comparable] struct {
	bitmaps map[K]*bitmap.Bitmap
	size    uint64
}

func newEqualityIndex[K comparable]() *equalityIndex[K] {
	return &equalityIndex[K]{bitmaps: make(map[K]*bitmap.Bitmap)}
}

func (e *equalityIndex[K]) Append(k K, id uint64) {
	for key, bm := range e.bitmaps {
		if gap := id - bm.Size(); gap > 0 {
			bm.Skip(gap)
		}
		bm.Append(key == k, 1)
	}
	if _, ok := e.bitmaps[k]; !ok {
		bm := bitmap.New()
		bm.Skip(id)
		bm.Append(true, 1)
		e.bitmaps[k] = bm
	}
	e.size = id + 1
}

func (e *equalityIndex[K]) Lookup(k K) *bitmap.Bitmap {
	if bm, ok := e.bitmaps[k]; ok {
		return bm.Clone()
	}
	return bitmap.Repeat(false, e.size)
}

// LookupPredicate ORs together every key's bitmap for which pred(key) is
// true; used to implement ordered comparisons (<, <=, >, >=) and the
// length-index "at least N" queries the string/list index need.
func (e *equalityIndex[K]) LookupPredicate(pred func(K) bool) *bitmap.Bitmap {
	result := bitmap.Repeat(false, e.size)
	for key, bm := range e.bitmaps {
		if pred(key) {
			result = bitmap.Or(result, bm)
		}
	}
	return result
}

func (e *equalityIndex[K]) Size() uint64 { return e.size }

func (e *equalityIndex[K]) MemUsage() uint64 {
	var acc uint64
	for _, bm := range e.bitmaps {
		acc += bm.Rank()/8 + 64
	}
	return acc
}

// MarshalBinary serializes the key set (via encoding/gob, since K is
// always one of a handful of gob-encodable scalar types) followed by
// each key's bitmap as a length-prefixed blob.
func (e *equalityIndex[K]) MarshalBinary() ([]byte, error) {
	keys := make([]K, 0, len(e.bitmaps))
	blobs := make([][]byte, 0, len(e.bitmaps))
	for k, bm := range e.bitmaps {
		b, err := bm.MarshalBinary()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		blobs = append(blobs, b)
	}
	var keyBuf bytes.Buffer
	if err := gob.NewEncoder(&keyBuf).Encode(keys); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, e.size); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(keyBuf.Len())); err != nil {
		return nil, err
	}
	buf.Write(keyBuf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(blobs))); err != nil {
		return nil, err
	}
	for _, b := range blobs {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(b))); err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func (e *equalityIndex[K]) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &e.size); err != nil {
		return err
	}
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return err
	}
	keyBuf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		return err
	}
	var keys []K
	if err := gob.NewDecoder(bytes.NewReader(keyBuf)).Decode(&keys); err != nil {
		return err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	e.bitmaps = make(map[K]*bitmap.Bitmap, n)
	for i := uint32(0); i < n; i++ {
		var blen uint32
		if err := binary.Read(r, binary.LittleEndian, &blen); err != nil {
			return err
		}
		blob := make([]byte, blen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return err
		}
		bm := bitmap.New()
		if err := bm.UnmarshalBinary(blob); err != nil {
			return err
		}
		e.bitmaps[keys[i]] = bm
	}
	return nil
}
