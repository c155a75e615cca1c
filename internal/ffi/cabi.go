//go:build cgo

package ffi

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"unsafe"
)

// ScanJSONC is the C-ABI entry point: takes a NUL-terminated JSON request,
// returns a heap-allocated NUL-terminated JSON response. The caller must
// release the returned pointer with FreeResult.
//
//export ScanJSONC
func ScanJSONC(req *C.char) *C.char {
	return toCString(ScanJSON(context.Background(), []byte(C.GoString(req))))
}

//export ClassifyJSONC
func ClassifyJSONC(req *C.char) *C.char {
	return toCString(ClassifyJSON(context.Background(), []byte(C.GoString(req))))
}

//export CleanJSONC
func CleanJSONC(req *C.char) *C.char {
	return toCString(CleanJSON(context.Background(), []byte(C.GoString(req))))
}

// FreeResult releases a buffer returned by one of the *JSONC functions.
//
//export FreeResult
func FreeResult(p *C.char) {
	C.free(unsafe.Pointer(p))
}

func toCString(b []byte) *C.char {
	return C.CString(string(b))
}
