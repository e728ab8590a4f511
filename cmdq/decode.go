package cmdq

import (
	"fmt"

	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/regset"
)

// Load reads numHeaders header entries starting at base and the pairs they
// describe, the way the device consumes a buffer. The device only knows the
// header address and count it was programmed with.
func Load(storage *memory.Storage, base uint64, numHeaders int) (regset.Set, error) {
	set := make(regset.Set, 0)

	for i := range numHeaders {
		entryAddr := base + uint64(i)*HeaderEntrySize

		start, err := storage.ReadUint32(entryAddr)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", i, err)
		}

		count, err := storage.ReadUint32(entryAddr + 4)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", i, err)
		}

		for j := range uint64(count) {
			pairAddr := base + uint64(start) + j*PairSize

			addr, err := storage.ReadUint32(pairAddr)
			if err != nil {
				return nil, fmt.Errorf("header %d pair %d: %w", i, j, err)
			}

			value, err := storage.ReadUint32(pairAddr + 4)
			if err != nil {
				return nil, fmt.Errorf("header %d pair %d: %w", i, j, err)
			}

			set = append(set, regset.Pair{Addr: addr, Value: value})
		}
	}

	return set, nil
}

// Decode reads the pairs a handle describes and checks that the headers
// account for every pair.
func Decode(storage *memory.Storage, h Handle) (regset.Set, error) {
	set, err := Load(storage, h.BaseAddr, h.NumHeaders)
	if err != nil {
		return nil, err
	}

	if len(set) != h.NumPairs {
		return nil, fmt.Errorf("handle claims %d pairs, headers hold %d",
			h.NumPairs, len(set))
	}

	return set, nil
}
