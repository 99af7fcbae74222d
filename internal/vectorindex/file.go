package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/intellicook/recipe-search/pkg/types"
)

// On-disk format, all little-endian:
//
//	magic      uint32  "RVIX"
//	version    uint32
//	dimension  uint32
//	count      uint32
//	records    count * (id int64, dimension * float32)
const (
	fileMagic   uint32 = 0x52564958 // "RVIX"
	fileVersion uint32 = 1
)

// Save writes the index to path, truncating any existing file
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	header := []uint32{fileMagic, fileVersion, uint32(idx.dim), uint32(len(idx.ids))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
	}

	for i, id := range idx.ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return fmt.Errorf("write record id: %w", err)
		}
		for _, v := range idx.vecs[i] {
			if err := binary.Write(w, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return fmt.Errorf("write record vector: %w", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync index file: %w", err)
	}
	return nil
}

// Load reads an index from path. expectDim > 0 asserts the stored
// dimension; a mismatch is ErrDimensionMismatch. A corrupt or truncated
// file is an error, never a partial index.
func Load(path string, expectDim int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var magic, version, dim, count uint32
	for _, dst := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("read index header: %w", err)
		}
	}

	if magic != fileMagic {
		return nil, fmt.Errorf("not an index file: bad magic %08x", magic)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported index file version %d", version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("index file declares zero dimension")
	}
	if expectDim > 0 && int(dim) != expectDim {
		return nil, fmt.Errorf("%w: file has %d, expected %d", types.ErrDimensionMismatch, dim, expectDim)
	}

	idx, err := New(int(dim))
	if err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("read record %d id: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("read record %d vector: %w", i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		if err := idx.Add(id, vec); err != nil {
			return nil, err
		}
	}

	return idx, nil
}
