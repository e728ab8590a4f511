package memory

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrOutOfRange is returned when an access goes beyond the storage capacity.
var ErrOutOfRange = errors.New("accessing address beyond the storage capacity")

// A Storage keeps the bytes behind simulated device memory: register windows
// and the host-writable, device-readable buffers the command loader reads.
//
// The storage is managed in units, similar to pages. Units that have never
// been touched by Read or Write are not allocated. A Storage is safe for
// concurrent use.
type Storage struct {
	sync.Mutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the number of addressable bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) accessMustBeInRange(address, length uint64) error {
	if address+length > s.capacity || address+length < address {
		return ErrOutOfRange
	}

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit.
func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.accessMustBeInRange(address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)
	s.read(address, res)

	return res, nil
}

func (s *Storage) read(address uint64, res []byte) {
	currAddr := address
	dataOffset := uint64(0)
	length := uint64(len(res))

	for dataOffset < length {
		unit := s.createOrGetStorageUnit(currAddr)
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := min(length-dataOffset, baseAddr+s.unitSize-currAddr)

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])

		dataOffset += lenToRead
		currAddr += lenToRead
	}
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	s.Lock()
	defer s.Unlock()

	if err := s.accessMustBeInRange(address, uint64(len(data))); err != nil {
		return err
	}

	s.write(address, data)

	return nil
}

func (s *Storage) write(address uint64, data []byte) {
	currAddr := address
	dataOffset := uint64(0)
	length := uint64(len(data))

	for dataOffset < length {
		unit := s.createOrGetStorageUnit(currAddr)
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := min(length-dataOffset, baseAddr+s.unitSize-currAddr)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])

		dataOffset += lenToWrite
		currAddr += lenToWrite
	}
}

// ReadUint32 reads a little-endian 32-bit word.
func (s *Storage) ReadUint32(address uint64) (uint32, error) {
	var buf [4]byte

	s.Lock()
	defer s.Unlock()

	if err := s.accessMustBeInRange(address, 4); err != nil {
		return 0, err
	}

	s.read(address, buf[:])

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes a little-endian 32-bit word.
func (s *Storage) WriteUint32(address uint64, value uint32) error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], value)

	s.Lock()
	defer s.Unlock()

	if err := s.accessMustBeInRange(address, 4); err != nil {
		return err
	}

	s.write(address, buf[:])

	return nil
}

// UpdateUint32 atomically applies fn to the 32-bit word at address and
// returns the old and new values.
func (s *Storage) UpdateUint32(
	address uint64,
	fn func(old uint32) uint32,
) (old, updated uint32, err error) {
	var buf [4]byte

	s.Lock()
	defer s.Unlock()

	if err = s.accessMustBeInRange(address, 4); err != nil {
		return 0, 0, err
	}

	s.read(address, buf[:])
	old = binary.LittleEndian.Uint32(buf[:])
	updated = fn(old)
	binary.LittleEndian.PutUint32(buf[:], updated)
	s.write(address, buf[:])

	return old, updated, nil
}
