// Command libembedcache builds the C shared library for embedcache:
//
//	go build -buildmode=c-shared -o libembedcache.so ./cmd/libembedcache
//
// Host-language bindings call the exported functions below. Handles are
// 64-bit integers from the process-wide registry; a handle from a closed
// store is rejected with StatusInvalidHandle. Every buffer returned by
// Get, FindSimilar, or GetStats is C-heap allocated and owned by the
// caller until released with the matching Free call.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/hupe1980/embedcache"
)

// Status codes returned across the boundary. Negative values signal
// failure; callers distinguish "not found" from a fault by code value.
const (
	StatusOK                = 0
	StatusInvalidHandle     = -1
	StatusDimensionMismatch = -2
	StatusNotFound          = -3
	StatusIOError           = -4
)

func statusFor(err error) C.int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, embedcache.ErrInvalidHandle), errors.Is(err, embedcache.ErrClosed):
		return StatusInvalidHandle
	case errors.Is(err, embedcache.ErrNotFound):
		return StatusNotFound
	default:
		var dm *embedcache.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return StatusDimensionMismatch
		}
		var id *embedcache.ErrInvalidDimension
		if errors.As(err, &id) {
			return StatusDimensionMismatch
		}
		return StatusIOError
	}
}

func goVector(ptr *C.float, length C.int) []float32 {
	if ptr == nil || length <= 0 {
		return nil
	}
	src := unsafe.Slice((*float32)(unsafe.Pointer(ptr)), int(length))
	out := make([]float32, len(src))
	copy(out, src)
	return out
}

// cVector copies v into a C-heap float buffer owned by the caller.
func cVector(v []float32) *C.float {
	ptr := (*C.float)(C.malloc(C.size_t(len(v)) * C.size_t(unsafe.Sizeof(C.float(0)))))
	dst := unsafe.Slice((*float32)(unsafe.Pointer(ptr)), len(v))
	copy(dst, v)
	return ptr
}

//export OpenDB
func OpenDB(pathCStr *C.char, dimension C.int, cacheCapacity C.int) C.longlong {
	path := C.GoString(pathCStr)

	var opts []embedcache.Option
	if cacheCapacity > 0 {
		opts = append(opts, embedcache.WithCacheCapacity(int(cacheCapacity)))
	}

	h, err := embedcache.OpenHandle(path, int(dimension), opts...)
	if err != nil {
		return C.longlong(statusFor(err))
	}
	return C.longlong(h)
}

//export CloseDB
func CloseDB(handle C.longlong) C.int {
	return statusFor(embedcache.CloseHandle(embedcache.Handle(handle)))
}

//export Insert
func Insert(handle C.longlong, keyCStr *C.char, vectorPtr *C.float, vectorLen C.int) C.int {
	store, err := embedcache.HandleStore(embedcache.Handle(handle))
	if err != nil {
		return statusFor(err)
	}
	return statusFor(store.Insert(C.GoString(keyCStr), goVector(vectorPtr, vectorLen)))
}

//export Get
func Get(handle C.longlong, keyCStr *C.char, outVectorPtr **C.float, outLen *C.int) C.int {
	store, err := embedcache.HandleStore(embedcache.Handle(handle))
	if err != nil {
		return statusFor(err)
	}

	vector, err := store.Get(C.GoString(keyCStr))
	if err != nil {
		return statusFor(err)
	}

	*outVectorPtr = cVector(vector)
	*outLen = C.int(len(vector))
	return StatusOK
}

//export FindSimilar
func FindSimilar(handle C.longlong, queryPtr *C.float, queryLen C.int, threshold C.float,
	outVectorPtr **C.float, outLen *C.int, outScore *C.float) C.int {

	store, err := embedcache.HandleStore(embedcache.Handle(handle))
	if err != nil {
		return statusFor(err)
	}

	match, err := store.FindSimilar(goVector(queryPtr, queryLen), float32(threshold))
	if err != nil {
		return statusFor(err)
	}

	*outVectorPtr = cVector(match.Vector)
	*outLen = C.int(len(match.Vector))
	*outScore = C.float(match.Score)
	return StatusOK
}

//export GetStats
func GetStats(handle C.longlong) *C.char {
	store, err := embedcache.HandleStore(embedcache.Handle(handle))
	if err != nil {
		return nil
	}

	stats, err := store.Stats()
	if err != nil {
		return nil
	}
	payload, err := stats.JSON()
	if err != nil {
		return nil
	}
	return C.CString(payload)
}

//export FreeVector
func FreeVector(ptr *C.float) {
	C.free(unsafe.Pointer(ptr))
}

//export FreeString
func FreeString(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func main() {}
