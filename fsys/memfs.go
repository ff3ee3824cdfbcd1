package fsys

import (
	"io"
	"strings"
	"sync"

	"mimic/mkerr"
)

// MemFS is an in-memory filesystem for tests that want exact control over
// file bytes (truncated headers, corrupt magic) without touching disk.
type MemFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemFS creates an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

// Put installs data at path, overwriting any existing content.
func (m *MemFS) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[path] = cp
}

// memHandle is a read or read-write view over one file's bytes. Write-mode
// handles buffer their own copy and flush it back to the MemFS on Close, the
// same "mutate a copy, commit at close" shape osHandle gets for free from
// *os.File.
type memHandle struct {
	m        *MemFS
	path     string
	data     []byte
	pos      int64
	writable bool
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.pos >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	if !h.writable {
		return 0, mkerr.New(mkerr.KindPerm, "memfs: read-only handle")
	}
	end := h.pos + int64(len(p))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	n := copy(h.data[h.pos:end], p)
	h.pos += int64(n)
	return n, nil
}

func (h *memHandle) Close() error {
	if !h.writable {
		return nil
	}
	h.m.Put(h.path, h.data)
	return nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = int64(len(h.data))
	default:
		return 0, mkerr.New(mkerr.KindInval, "memfs: unknown whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, mkerr.New(mkerr.KindInval, "memfs: negative seek result %d", next)
	}
	h.pos = next
	return h.pos, nil
}

func (h *memHandle) Tell() (int64, error) { return h.pos, nil }

func (m *MemFS) Open(path string, mode Mode) (Handle, error) {
	m.mu.Lock()
	data, ok := m.files[path]
	m.mu.Unlock()

	switch mode {
	case ReadOnly:
		if !ok {
			return nil, mkerr.New(mkerr.KindNoent, "memfs: no such file %q", path)
		}
		return &memHandle{m: m, path: path, data: data}, nil
	case ReadWrite:
		if !ok {
			return nil, mkerr.New(mkerr.KindNoent, "memfs: no such file %q", path)
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		return &memHandle{m: m, path: path, data: cp, writable: true}, nil
	case Create:
		return &memHandle{m: m, path: path, writable: true}, nil
	default:
		return nil, mkerr.New(mkerr.KindInval, "memfs: unknown mode %d", mode)
	}
}

func (m *MemFS) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *MemFS) IsDir(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (m *MemFS) ReadDir(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path + "/"
	var names []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			names = append(names, p)
		}
	}
	return names, nil
}
