// Package linker merges one or more compiler/codegen.Object blobs into a
// single mimi.Module, per spec §4.H: append TEXT/DATA tracking each
// object's base offset, rebase relocations and symbol values by that same
// offset, fold EXTERN/GLOBAL pairs into one combined symbol table entry,
// and locate the GLOBAL named "main" as the entry point. Grounded on
// mimi.Module's own field shape (no translation needed between object and
// container symbol/relocation records — codegen.Object was deliberately
// built to carry mimi.Symbol/mimi.Relocation directly) and on
// loader/reloc.go's resolution convention, which this package's step 5
// mirrors at link time instead of load time for a SYSCALL/EXTERN split.
package linker

import (
	"mimic/compiler/codegen"
	"mimic/mimi"
	"mimic/mkerr"
)

// Options configures the produced Module's header fields that no object
// blob carries — the linker decides the target arch and resource request,
// not any one compilation unit.
type Options struct {
	Arch         mimi.Arch
	Name         string
	StackRequest uint32
	HeapRequest  uint32
}

// DefaultOptions mirrors mimirun's default target: Cortex-M0+, no extra
// stack/heap beyond whatever the task scheduler's own defaults apply.
func DefaultOptions() Options {
	return Options{Arch: mimi.ArchCortexM0Plus}
}

// mergedSymbol tracks one entry of the combined symbol table being built,
// plus whether it has been resolved yet.
type mergedSymbol struct {
	sym      mimi.Symbol
	resolved bool // true once a GLOBAL definition has been seen
}

// Link merges objs in order into a single mimi.Module.
func Link(objs []*codegen.Object, opts Options) (*mimi.Module, error) {
	if len(objs) == 0 {
		return nil, mkerr.New(mkerr.KindLink, "linker: no input objects")
	}

	m := &mimi.Module{Arch: opts.Arch, Name: opts.Name, StackRequest: opts.StackRequest, HeapRequest: opts.HeapRequest}

	textBase := make([]uint32, len(objs))
	dataBase := make([]uint32, len(objs))

	// Step 1: append TEXT/DATA, remembering each object's base offset.
	for i, o := range objs {
		textBase[i] = uint32(len(m.Text))
		dataBase[i] = uint32(len(m.Data))
		m.Text = append(m.Text, o.Text...)
		m.Data = append(m.Data, o.Data...)
	}

	// Step 3: merge symbols by name, rebasing each by its defining
	// object's section offset.
	byName := make(map[string]int) // name -> index into combined[]
	var combined []mergedSymbol
	// objSymIdx[i][j] is the combined-table index object i's local symbol j
	// maps to, so step 2 can remap each relocation's symbol_idx.
	objSymIdx := make([][]int, len(objs))

	for i, o := range objs {
		objSymIdx[i] = make([]int, len(o.Symbols))
		for j, s := range o.Symbols {
			rebased := s
			switch s.Section {
			case mimi.SectText:
				rebased.Value += textBase[i]
			case mimi.SectData:
				rebased.Value += dataBase[i]
			}

			existing, ok := byName[s.Name]
			if !ok {
				idx := len(combined)
				combined = append(combined, mergedSymbol{sym: rebased, resolved: s.Type == mimi.SymGlobal})
				byName[s.Name] = idx
				objSymIdx[i][j] = idx
				continue
			}

			cur := combined[existing]
			switch {
			case s.Type == mimi.SymGlobal && cur.resolved:
				return nil, mkerr.New(mkerr.KindLink, "linker: multiple definition of %s", s.Name)
			case s.Type == mimi.SymGlobal:
				// A GLOBAL satisfies a previously-seen EXTERN.
				combined[existing] = mergedSymbol{sym: rebased, resolved: true}
			case s.Type == mimi.SymSyscall && !cur.resolved:
				combined[existing] = mergedSymbol{sym: rebased, resolved: true}
			// An EXTERN (or a repeat SYSCALL) seen after a GLOBAL/SYSCALL:
			// fold into the existing entry, nothing to update.
			default:
			}
			objSymIdx[i][j] = existing
		}
	}

	// Step 2: rebase each relocation's offset by its section's base, and
	// remap its symbol_idx through objSymIdx into the combined table.
	for i, o := range objs {
		for _, r := range o.Relocs {
			rel := r
			switch r.Section {
			case mimi.SectText:
				rel.Offset += textBase[i]
			case mimi.SectData:
				rel.Offset += dataBase[i]
			}
			rel.SymbolIdx = uint32(objSymIdx[i][r.SymbolIdx])
			m.Relocs = append(m.Relocs, rel)
		}
	}

	m.Symbols = make([]mimi.Symbol, len(combined))
	for i, ms := range combined {
		m.Symbols[i] = ms.sym
	}

	// Step 4: the entry point is the first GLOBAL named "main".
	mainIdx, ok := byName["main"]
	if !ok || m.Symbols[mainIdx].Type != mimi.SymGlobal {
		return nil, mkerr.New(mkerr.KindLink, "linker: no GLOBAL symbol named \"main\"")
	}
	m.EntryOffset = m.Symbols[mainIdx].Value

	// Step 5: an unresolved EXTERN that isn't a SYSCALL is a hard link
	// error here (the loader only tolerates it at load time for a module
	// that was never run through this linker, e.g. a hand-assembled test
	// fixture).
	for _, ms := range combined {
		if ms.sym.Type == mimi.SymExtern {
			return nil, mkerr.New(mkerr.KindLink, "linker: unresolved external symbol %s", ms.sym.Name)
		}
	}

	return m, nil
}
