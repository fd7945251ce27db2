// Package importer allocates monotonic IDs for inbound event slices.
// ID allocation happens exclusively here (spec.md §5 "Shared-resource
// policy... ID allocation is performed exclusively by the importer").
package importer

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/telescan/telescan/internal/storage"
	"github.com/telescan/telescan/xerrors"
)

// DefaultBlockSize is the number of IDs reserved per restart (spec.md
// §5 "default 8 Mi IDs").
const DefaultBlockSize = 8 * 1024 * 1024

const idBlockFile = "importer/current_id_block"

// idBlock is the on-disk crash-recovery record: the reserved block's
// exclusive end, and the next ID to hand out. Absence of Next implies
// an irregular shutdown; see Recover.
type idBlock struct {
	End  uint64
	Next uint64
}

// IDAllocator hands out strictly increasing IDs in blocks, persisting
// the current block so a restart never reuses an ID handed out before
// the shutdown (spec.md §6 "current_id_block").
type IDAllocator struct {
	mu        sync.Mutex
	dir       storage.Dir
	blockSize uint64
	block     idBlock
}

// NewIDAllocator recovers (or initializes) the allocator's state from
// dir. Absence of the id-block file starts from (0, 0); presence of a
// file whose Next field is absent (truncated mid-write, i.e. an
// irregular shutdown) forfeits the unused portion of the block by
// setting Next to End (spec.md §6).
func NewIDAllocator(dir storage.Dir, blockSize uint64) (*IDAllocator, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	a := &IDAllocator{dir: dir, blockSize: blockSize}

	raw, err := dir.ReadFile(idBlockFile)
	if err != nil {
		a.block = idBlock{End: 0, Next: 0}
		return a, a.reserveNewBlock()
	}
	block, ok := decodeIDBlock(raw)
	if !ok {
		// Irregular shutdown: the next field never made it to disk.
		// Forfeit the remainder of whatever block was last reserved.
		block.Next = block.End
	}
	a.block = block
	return a, a.reserveNewBlock()
}

// reserveNewBlock always starts a fresh restart from a block boundary
// strictly past anything previously recorded, guaranteeing no reused
// IDs even when the recovered block still had room (spec.md §5: "A
// restart reserves a fresh block... to avoid reusing any IDs from
// before the shutdown").
func (a *IDAllocator) reserveNewBlock() error {
	base := a.block.End
	a.block = idBlock{End: base + a.blockSize, Next: base}
	return a.persist()
}

func (a *IDAllocator) persist() error {
	return a.dir.WriteFile(idBlockFile, encodeIDBlock(a.block))
}

// Allocate reserves n consecutive IDs, transparently rolling to a new
// block (persisted before any ID in it is handed out) when the current
// block cannot satisfy the request.
func (a *IDAllocator) Allocate(n uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.block.Next+n > a.block.End {
		if err := a.reserveNewBlock(); err != nil {
			return 0, xerrors.Wrap(err, "importer: reserve new id block")
		}
		if n > a.blockSize {
			return 0, xerrors.Newf(xerrors.LogicError, "importer: slice of %d rows exceeds block size %d", n, a.blockSize)
		}
	}
	base := a.block.Next
	a.block.Next += n
	if err := a.persist(); err != nil {
		return 0, xerrors.Wrap(err, "importer: persist id block")
	}
	return base, nil
}

func encodeIDBlock(b idBlock) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, b.End)
	_ = binary.Write(&buf, binary.LittleEndian, b.Next)
	return buf.Bytes()
}

// decodeIDBlock returns ok=false when the buffer is too short to carry
// the Next field (the on-disk marker for an irregular shutdown).
func decodeIDBlock(raw []byte) (idBlock, bool) {
	var b idBlock
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &b.End); err != nil {
		return idBlock{}, false
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Next); err != nil {
		return idBlock{End: b.End}, false
	}
	return b, true
}
