package codegen

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"mimic/compiler/parser"
	"mimic/mimi"
)

// compile runs src through the full compiler front end and returns the
// emitted Object, failing the test on any parse or codegen error.
func compile(t *testing.T, src string) *Object {
	t.Helper()
	p := parser.New(src)
	tree := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	g := New(tree, p.Strings())
	obj := g.Emit()
	if errs := g.Errors(); len(errs) > 0 {
		t.Fatalf("unexpected codegen errors: %v", errs)
	}
	return obj
}

func symbol(t *testing.T, obj *Object, name string) mimi.Symbol {
	t.Helper()
	for _, s := range obj.Symbols {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no symbol named %q in %v", name, obj.Symbols)
	return mimi.Symbol{}
}

func halfword(obj *Object, off uint32) uint16 {
	return binary.LittleEndian.Uint16(obj.Text[off : off+2])
}

func TestEmitFuncPrologueAndEpilogueAreFixed(t *testing.T) {
	obj := compile(t, "int main() { return 0; }")
	sym := symbol(t, obj, "main")
	if halfword(obj, sym.Value) != 0xB5F0 {
		t.Fatalf("expected push {r4-r7,lr} at function entry, got %#x", halfword(obj, sym.Value))
	}
	foundPop := false
	for off := sym.Value; off+2 <= uint32(len(obj.Text)); off += 2 {
		if halfword(obj, off) == 0xBDF0 {
			foundPop = true
			break
		}
	}
	if !foundPop {
		t.Fatalf("expected pop {r4-r7,pc} in the epilogue of %x", obj.Text)
	}
}

func TestReturnConstantLoadsViaMovImm(t *testing.T) {
	obj := compile(t, "int main() { return 42; }")
	sym := symbol(t, obj, "main")
	// First instruction after the prologue/SP-adjust pair is "mov r0,#42".
	mov := halfword(obj, sym.Value+4)
	if mov != movImm(r0, 42) {
		t.Fatalf("expected mov r0,#42 (%#x), got %#x", movImm(r0, 42), mov)
	}
}

func TestWideLiteralLoadsFromLiteralPool(t *testing.T) {
	obj := compile(t, "int main() { return 70000; }")
	sym := symbol(t, obj, "main")
	// 70000 exceeds the single-MOV range, so it must go through a pool load
	// rather than a bare MOV.
	ldr := halfword(obj, sym.Value+4)
	if ldr&0xF800 != 0x4800 {
		t.Fatalf("expected an LDR Rd,[PC,#imm] pool load, got %#x", ldr)
	}
}

func TestBinaryOperandOrderKeepsLeftInR0RightInR1(t *testing.T) {
	// SUB is non-commutative: codegen must emit "a - b", not "b - a", even
	// though the right operand is evaluated first and pushed.
	obj := compile(t, "int main() { int a; int b; a = 5; b = 2; return a - b; }")
	foundSub := false
	for off := uint32(0); off+2 <= uint32(len(obj.Text)); off += 2 {
		hw := halfword(obj, off)
		if hw&0xFE00 == 0x1A00 { // subs rd, rn, rm encoding family
			foundSub = true
			if hw != subRegs(r0, r0, r1) {
				t.Fatalf("expected subs r0, r0, r1 (%#x), got %#x", subRegs(r0, r0, r1), hw)
			}
			break
		}
	}
	if !foundSub {
		t.Fatalf("expected a SUB instruction in %x", obj.Text)
	}
}

func TestDivisionLowersToAeabiIdivmodCall(t *testing.T) {
	obj := compile(t, "int main() { int a; a = 10; return a / 3; }")
	symbol(t, obj, "__aeabi_idivmod") // must be referenced as an extern
	foundCall := false
	for _, r := range obj.Relocs {
		if r.Type == mimi.RelocThumbCall {
			if obj.Symbols[r.SymbolIdx].Name == "__aeabi_idivmod" {
				foundCall = true
			}
		}
	}
	if !foundCall {
		t.Fatalf("expected a RelocThumbCall against __aeabi_idivmod, relocs=%v", obj.Relocs)
	}
}

func TestSyscallCallLowersToSvcNotBL(t *testing.T) {
	obj := compile(t, `int main() { puts("hi"); return 0; }`)
	for _, r := range obj.Relocs {
		if r.Type == mimi.RelocThumbCall && obj.Symbols[r.SymbolIdx].Name == "puts" {
			t.Fatalf("puts should lower to SVC, not a BL relocation")
		}
	}
	sym := symbol(t, obj, "puts")
	if sym.Type != mimi.SymSyscall {
		t.Fatalf("expected puts to be recorded as SymSyscall, got %v", sym.Type)
	}
}

func TestCharArrayIndexUsesByteLoadStore(t *testing.T) {
	obj := compile(t, `int main() { char buf[4]; buf[0] = 'a'; return buf[0]; }`)
	foundByteOp := false
	for off := uint32(0); off+2 <= uint32(len(obj.Text)); off += 2 {
		hw := halfword(obj, off)
		if hw&0xF800 == 0x7000 || hw&0xF800 == 0x7800 { // STRB/LDRB family
			foundByteOp = true
			break
		}
	}
	if !foundByteOp {
		t.Fatalf("expected an LDRB/STRB for char array element access, text=%x", obj.Text)
	}
}

func TestIntArrayIndexStillUsesWordLoadStore(t *testing.T) {
	obj := compile(t, `int main() { int buf[4]; buf[0] = 1; return buf[0]; }`)
	foundWordOp := false
	for off := uint32(0); off+2 <= uint32(len(obj.Text)); off += 2 {
		hw := halfword(obj, off)
		if hw&0xF800 == 0x6000 || hw&0xF800 == 0x6800 { // STR/LDR immediate-offset family
			foundWordOp = true
			break
		}
	}
	if !foundWordOp {
		t.Fatalf("expected an LDR/STR for int array element access, text=%x", obj.Text)
	}
}

func TestIfElseBranchesAreBackpatched(t *testing.T) {
	obj := compile(t, "int main() { if (1) { return 1; } else { return 2; } }")
	foundBCC := false
	for off := uint32(0); off+2 <= uint32(len(obj.Text)); off += 2 {
		hw := halfword(obj, off)
		if hw&0xF000 == 0xD000 && hw&0x0F00 != 0x0F00 { // BCC, not SVC (0xDFxx)
			foundBCC = true
		}
	}
	if !foundBCC {
		t.Fatalf("expected a conditional branch for the if/else, text=%x", obj.Text)
	}
}

func TestBreakAndContinueResolveToLoopLabels(t *testing.T) {
	obj := compile(t, `int main() {
		int i;
		int sum;
		sum = 0;
		for (i = 0; i < 10; i = i + 1) {
			if (i == 5) { break; }
			if (i == 2) { continue; }
			sum = sum + i;
		}
		return sum;
	}`)
	if len(obj.Text) == 0 {
		t.Fatalf("expected non-empty text section")
	}
	// Every branch is emitted as a zero placeholder and patched once its
	// label is bound; none may be left behind.
	for off := uint32(0); off+2 <= uint32(len(obj.Text)); off += 2 {
		if halfword(obj, off) == 0 {
			t.Fatalf("unpatched branch placeholder at offset %d in %x", off, obj.Text)
		}
	}
}

func TestObjectEncodeDecodeRoundTrip(t *testing.T) {
	obj := compile(t, `int g; int main() { g = 3; return g; }`)
	encoded := obj.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Text) != len(obj.Text) {
		t.Fatalf("text length mismatch: got %d, want %d", len(decoded.Text), len(obj.Text))
	}
	if len(decoded.Data) != len(obj.Data) {
		t.Fatalf("data length mismatch: got %d, want %d", len(decoded.Data), len(obj.Data))
	}
	if len(decoded.Symbols) != len(obj.Symbols) {
		t.Fatalf("symbol count mismatch: got %d, want %d", len(decoded.Symbols), len(obj.Symbols))
	}
	for i, s := range obj.Symbols {
		if decoded.Symbols[i].Name != s.Name || decoded.Symbols[i].Value != s.Value {
			t.Fatalf("symbol %d mismatch: got %+v, want %+v", i, decoded.Symbols[i], s)
		}
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected Decode to reject a too-short blob")
	}
}

func TestFunctionCallPassesArgumentsInR0ThroughR3(t *testing.T) {
	obj := compile(t, `
		int add(int a, int b) { return a + b; }
		int main() { return add(1, 2); }
	`)
	addSym := symbol(t, obj, "add")
	if addSym.Type != mimi.SymGlobal {
		t.Fatalf("expected add to be defined as a global symbol, got %v", addSym.Type)
	}
	foundCall := false
	for _, r := range obj.Relocs {
		if r.Type == mimi.RelocThumbCall && obj.Symbols[r.SymbolIdx].Name == "add" {
			foundCall = true
			// Arguments are pushed left to right and popped back into
			// r1 then r0 right before the BL.
			if halfword(obj, r.Offset-4) != popReg(r1) || halfword(obj, r.Offset-2) != popReg(r0) {
				t.Fatalf("expected pop {r1}; pop {r0} before the call, got %#x %#x", halfword(obj, r.Offset-4), halfword(obj, r.Offset-2))
			}
		}
	}
	if !foundCall {
		t.Fatalf("expected a RelocThumbCall against add")
	}
}

func TestSizeofLocalResolvesDeclaredTypeSize(t *testing.T) {
	obj := compile(t, `int main() { char c; return sizeof(c); }`)
	sym := symbol(t, obj, "main")
	mov := halfword(obj, sym.Value+4)
	if mov != movImm(r0, 1) {
		t.Fatalf("expected mov r0,#1 for sizeof(char), got %#x", mov)
	}
}

// txtarManifest parses an archive comment of "key: a, b" lines into a map
// from key to its comma-separated values, the same manifest shape
// compiler/parser's fixtures use.
func txtarManifest(comment []byte) map[string][]string {
	m := make(map[string][]string)
	for _, line := range strings.Split(string(comment), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		var vals []string
		for _, v := range strings.Split(rest, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		m[strings.TrimSpace(key)] = vals
	}
	return m
}

func symbolsOfType(obj *Object, typ mimi.SymbolType) map[string]bool {
	out := make(map[string]bool)
	for _, s := range obj.Symbols {
		if s.Type == typ {
			out[s.Name] = true
		}
	}
	return out
}

// TestCodegenTxtarFixtures runs every compiler/codegen/testdata/*.txtar
// fixture through the front end and checks the emitted symbol table against
// the archive's defined/extern/syscall manifest.
func TestCodegenTxtarFixtures(t *testing.T) {
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
			want := txtarManifest(a.Comment)

			var src []byte
			for _, f := range a.Files {
				if f.Name == "main.c" {
					src = f.Data
				}
			}
			if src == nil {
				t.Fatalf("fixture %s has no main.c file", path)
			}

			obj := compile(t, string(src))
			defined := symbolsOfType(obj, mimi.SymGlobal)
			extern := symbolsOfType(obj, mimi.SymExtern)
			syscall := symbolsOfType(obj, mimi.SymSyscall)

			for _, name := range want["defined"] {
				if !defined[name] {
					t.Errorf("expected %q to be a defined (SymGlobal) symbol", name)
				}
			}
			for _, name := range want["extern"] {
				if !extern[name] {
					t.Errorf("expected %q to be an extern symbol", name)
				}
			}
			for _, name := range want["syscall"] {
				if !syscall[name] {
					t.Errorf("expected %q to be a syscall symbol", name)
				}
			}
		})
	}
}

func TestPrototypeOnlyFunctionReservesExternSymbol(t *testing.T) {
	obj := compile(t, `
		int helper(int x);
		int main() { return helper(1); }
	`)
	sym := symbol(t, obj, "helper")
	if sym.Type != mimi.SymExtern {
		t.Fatalf("expected helper to stay an extern symbol, got %v", sym.Type)
	}
}
