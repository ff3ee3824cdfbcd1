package mimi

import "mimic/mkerr"

// Validate checks the header invariants the loader must reject per spec
// §4.D step 1: bad magic, wrong version, architecture mismatch, empty TEXT,
// or an entry point outside TEXT are all NOEXEC.
func (h Header) Validate(target Arch) error {
	if h.Magic != Magic {
		return mkerr.New(mkerr.KindNoexec, "bad magic: 0x%08x", h.Magic)
	}
	if h.Version != Version {
		return mkerr.New(mkerr.KindNoexec, "unsupported version: %d", h.Version)
	}
	if h.Arch != target {
		return mkerr.New(mkerr.KindNoexec, "arch mismatch: binary=%d running=%d", h.Arch, target)
	}
	if h.TextSize == 0 {
		return mkerr.New(mkerr.KindNoexec, "empty text section")
	}
	if h.EntryOffset >= h.TextSize {
		return mkerr.New(mkerr.KindNoexec, "entry_offset %d >= text_size %d", h.EntryOffset, h.TextSize)
	}
	return nil
}
