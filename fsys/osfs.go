package fsys

import (
	"os"
	"path/filepath"

	"mimic/mkerr"
)

// OSFS is the real filesystem, a thin wrapper over os — the implementation
// every cmd/* binary uses.
type OSFS struct{}

// osHandle adapts *os.File to Handle (it already satisfies everything but
// Tell, which os.File provides only via Seek(0, io.SeekCurrent)).
type osHandle struct{ f *os.File }

func (h osHandle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h osHandle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h osHandle) Close() error                { return h.f.Close() }
func (h osHandle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}
func (h osHandle) Tell() (int64, error) { return h.f.Seek(0, os.SEEK_CUR) }

func (OSFS) Open(path string, mode Mode) (Handle, error) {
	var flag int
	switch mode {
	case ReadOnly:
		flag = os.O_RDONLY
	case ReadWrite:
		flag = os.O_RDWR
	case Create:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	default:
		return nil, mkerr.New(mkerr.KindInval, "fsys: unknown mode %d", mode)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mkerr.Wrap(mkerr.KindNoent, err, "open %s", path)
		}
		if os.IsPermission(err) {
			return nil, mkerr.Wrap(mkerr.KindPerm, err, "open %s", path)
		}
		return nil, mkerr.Wrap(mkerr.KindIO, err, "open %s", path)
	}
	return osHandle{f}, nil
}

func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFS) IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func (OSFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mkerr.Wrap(mkerr.KindIO, err, "readdir %s", path)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = filepath.Join(path, e.Name())
	}
	return names, nil
}
