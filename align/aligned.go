package align

import (
	"reflect"
	"unsafe"

	"coherency/constants"
)

// CacheAligned holds one T whose address is a multiple of the line size and
// whose backing cell is padded to a whole number of lines.
//
// Go has no alignment directive above 8 bytes, so the cell type is built with
// reflect at construction: struct{ Val T; Pad [n]byte } with its size rounded
// up to a line multiple. Heap size classes that are line multiples place such
// cells on line boundaries; when the allocator hands back a misaligned cell
// anyway, a strided array of line+8 byte cells is allocated instead and the one
// slot that lands on a boundary is used. Either way the cell is typed, so
// pointers inside T stay visible to the GC.
type CacheAligned[T any] struct {
	val  *T
	size uintptr
	keep any // backing allocation
}

// New returns a cache-aligned container holding v.
func New[T any](v T) *CacheAligned[T] {
	c := &CacheAligned[T]{}
	c.init()
	*c.val = v
	return c
}

// NewZero returns a cache-aligned container holding T's zero value.
func NewZero[T any]() *CacheAligned[T] {
	c := &CacheAligned[T]{}
	c.init()
	return c
}

func (c *CacheAligned[T]) init() {
	elem := reflect.TypeOf((*T)(nil)).Elem()
	size := AlignedSize(elem.Size())

	v := reflect.New(cellType(elem, size-elem.Size()))
	p := v.Elem().Field(0).Addr().UnsafePointer()
	if uintptr(p)%constants.LineSize == 0 {
		c.val = (*T)(p)
		c.size = size
		c.keep = v.Interface()
		return
	}

	// Fallback: cells of size+8 bytes step the address through every 8-byte
	// residue mod LineSize, so one of LineSize/8 consecutive cells is aligned.
	strided := cellType(elem, size+8-elem.Size())
	arr := reflect.New(reflect.ArrayOf(constants.LineSize/8+1, strided))
	for i := 0; i < arr.Elem().Len(); i++ {
		q := arr.Elem().Index(i).Field(0).Addr().UnsafePointer()
		if uintptr(q)%constants.LineSize == 0 {
			c.val = (*T)(q)
			c.size = size
			c.keep = arr.Interface()
			return
		}
	}
	panic("align: no line-aligned slot in strided allocation")
}

// Get exposes the payload without copying.
//
//go:nosplit
//go:inline
func (c *CacheAligned[T]) Get() *T {
	return c.val
}

// Load returns a copy of the payload.
func (c *CacheAligned[T]) Load() T {
	return *c.val
}

// Store overwrites the payload.
func (c *CacheAligned[T]) Store(v T) {
	*c.val = v
}

// Addr returns the payload's base address.
func (c *CacheAligned[T]) Addr() uintptr {
	return uintptr(unsafe.Pointer(c.val))
}

// Size returns the number of bytes the payload occupies including padding.
// It is always a non-zero multiple of the line size.
func (c *CacheAligned[T]) Size() uintptr {
	return c.size
}

// cellType builds struct{ Val T; Pad [pad]byte }. A zero pad is left out: a
// trailing zero-size field would grow the struct past the line multiple.
func cellType(elem reflect.Type, pad uintptr) reflect.Type {
	fields := []reflect.StructField{{Name: "Val", Type: elem}}
	if pad > 0 {
		fields = append(fields, reflect.StructField{
			Name: "Pad",
			Type: reflect.ArrayOf(int(pad), reflect.TypeOf(byte(0))),
		})
	}
	return reflect.StructOf(fields)
}
