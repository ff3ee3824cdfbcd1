package linker

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"mimic/compiler/codegen"
	"mimic/compiler/parser"
	"mimic/mimi"
)

func compile(t *testing.T, src string) *codegen.Object {
	t.Helper()
	p := parser.New(src)
	tree := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	g := codegen.New(tree, p.Strings())
	obj := g.Emit()
	if errs := g.Errors(); len(errs) > 0 {
		t.Fatalf("unexpected codegen errors: %v", errs)
	}
	return obj
}

func findSymbol(m *mimi.Module, name string) (mimi.Symbol, bool) {
	for _, s := range m.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return mimi.Symbol{}, false
}

// TestLinkTxtarFixtures runs every compiler/linker/testdata/*.txtar
// fixture's .c files through the front end, links them in file-name order, and
// checks the merged module's entry symbol against the archive's "entry:"
// manifest line.
func TestLinkTxtarFixtures(t *testing.T) {
	matches, err := filepath.Glob("testdata/*.txtar")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no testdata/*.txtar fixtures found")
	}
	for _, path := range matches {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			a := txtar.Parse(raw)

			var wantEntry string
			for _, line := range strings.Split(string(a.Comment), "\n") {
				line = strings.TrimSpace(line)
				if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "entry" {
					wantEntry = strings.TrimSpace(v)
				}
			}
			if wantEntry == "" {
				t.Fatalf("fixture %s has no entry: manifest line", path)
			}

			files := append([]txtar.File(nil), a.Files...)
			sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

			var objs []*codegen.Object
			for _, f := range files {
				if !strings.HasSuffix(f.Name, ".c") {
					continue
				}
				objs = append(objs, compile(t, string(f.Data)))
			}
			if len(objs) == 0 {
				t.Fatalf("fixture %s has no .c files", path)
			}

			m, err := Link(objs, DefaultOptions())
			if err != nil {
				t.Fatalf("Link: %v", err)
			}
			sym, ok := findSymbol(m, wantEntry)
			if !ok {
				t.Fatalf("expected a %q symbol in the merged table", wantEntry)
			}
			if m.EntryOffset != sym.Value {
				t.Fatalf("entry offset %d does not match %s's value %d", m.EntryOffset, wantEntry, sym.Value)
			}
		})
	}
}

func TestLinkSingleObjectSetsEntryOffsetToMain(t *testing.T) {
	obj := compile(t, "int main() { return 5; }")
	m, err := Link([]*codegen.Object{obj}, DefaultOptions())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	main, ok := findSymbol(m, "main")
	if !ok {
		t.Fatalf("expected a main symbol in the merged table")
	}
	if m.EntryOffset != main.Value {
		t.Fatalf("entry offset %d does not match main's value %d", m.EntryOffset, main.Value)
	}
}

func TestLinkRebasesSecondObjectsTextAndRelocations(t *testing.T) {
	a := compile(t, "int helper(int x) { return x + 1; }")
	b := compile(t, `
		int helper(int x);
		int main() { return helper(2); }
	`)
	aTextLen := len(a.Text)

	m, err := Link([]*codegen.Object{a, b}, DefaultOptions())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	// b's "helper" EXTERN is satisfied by a's "helper" GLOBAL; the call
	// site's relocation must end up rebased past a's own text.
	foundCallPastA := false
	for _, r := range m.Relocs {
		if r.Type == mimi.RelocThumbCall && int(r.Offset) >= aTextLen {
			callee := m.Symbols[r.SymbolIdx]
			if callee.Name == "helper" {
				foundCallPastA = true
			}
		}
	}
	if !foundCallPastA {
		t.Fatalf("expected a rebased call to helper in b's (second object's) text, relocs=%v symbols=%v", m.Relocs, m.Symbols)
	}

	helperSym, ok := findSymbol(m, "helper")
	if !ok {
		t.Fatalf("expected a merged helper symbol")
	}
	if helperSym.Type != mimi.SymGlobal {
		t.Fatalf("expected helper's EXTERN (from b) to be satisfied by a's GLOBAL, got %v", helperSym.Type)
	}
}

func TestLinkRejectsDuplicateGlobalDefinition(t *testing.T) {
	a := compile(t, "int main() { return 1; }")
	b := compile(t, "int main() { return 2; }")
	if _, err := Link([]*codegen.Object{a, b}, DefaultOptions()); err == nil {
		t.Fatalf("expected an error for two GLOBAL definitions of main")
	}
}

func TestLinkRejectsUnresolvedNonSyscallExtern(t *testing.T) {
	obj := compile(t, `
		int undefined_func(int x);
		int main() { return undefined_func(1); }
	`)
	if _, err := Link([]*codegen.Object{obj}, DefaultOptions()); err == nil {
		t.Fatalf("expected an error for an unresolved non-SYSCALL extern")
	}
}

func TestLinkToleratesUnresolvedSyscallExtern(t *testing.T) {
	obj := compile(t, `int main() { puts("hi"); return 0; }`)
	m, err := Link([]*codegen.Object{obj}, DefaultOptions())
	if err != nil {
		t.Fatalf("Link should not fail on a SYSCALL extern: %v", err)
	}
	sym, ok := findSymbol(m, "puts")
	if !ok || sym.Type != mimi.SymSyscall {
		t.Fatalf("expected puts to remain a SYSCALL symbol, got %+v (found=%v)", sym, ok)
	}
}

func TestLinkRejectsEmptyObjectList(t *testing.T) {
	if _, err := Link(nil, DefaultOptions()); err == nil {
		t.Fatalf("expected an error for an empty object list")
	}
}

func TestLinkRejectsMissingMain(t *testing.T) {
	obj := compile(t, "int helper() { return 1; }")
	if _, err := Link([]*codegen.Object{obj}, DefaultOptions()); err == nil {
		t.Fatalf("expected an error when no GLOBAL named main exists")
	}
}
