// Package fsys is the filesystem collaborator the loader and cmd/* tools
// read modules through (spec §6). It exists so the loader's short-read and
// corrupt-header paths can be unit tested against an in-memory filesystem
// instead of real files, and so a future real target's FAT32 layer (see
// original_source/Test-01/mimic_fat32.c) has one seam to implement against
// instead of a dozen call sites each doing their own open/close.
package fsys

import "io"

// Mode selects how Open treats the file.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	Create
)

// Handle is an open file: a byte stream with random access, closed exactly
// once by the opener (always under defer at the call site — the scoped-
// resource pattern, replacing the original's manual close on every error
// branch).
type Handle interface {
	io.ReadWriteCloser
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
}

// FS is the filesystem surface the loader and cmd/* tools depend on.
type FS interface {
	Open(path string, mode Mode) (Handle, error)
	Exists(path string) bool
	IsDir(path string) bool
	ReadDir(path string) ([]string, error)
}
