package regio

import "log"

// A Field is a bit range inside a 32-bit register.
type Field struct {
	Name  string
	Reg   uint32
	Shift uint8
	Width uint8
}

// NewField creates a field and checks that it fits in a 32-bit register.
func NewField(name string, reg uint32, shift, width uint8) Field {
	if width == 0 || int(shift)+int(width) > 32 {
		log.Panicf("field %s [%d+:%d] does not fit in 32 bits",
			name, shift, width)
	}

	return Field{Name: name, Reg: reg, Shift: shift, Width: width}
}

// Mask returns the in-register mask of the field.
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return 0xffffffff
	}

	return ((uint32(1) << f.Width) - 1) << f.Shift
}

// Get extracts the field value from a register value.
func (f Field) Get(regValue uint32) uint32 {
	return (regValue & f.Mask()) >> f.Shift
}

// Set returns regValue with the field replaced by value. Bits of value that do
// not fit in the field are dropped.
func (f Field) Set(regValue, value uint32) uint32 {
	return (regValue &^ f.Mask()) | ((value << f.Shift) & f.Mask())
}
