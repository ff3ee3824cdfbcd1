package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"mimic/compiler/ast"
	"mimic/compiler/token"
)

func TestParseExprPrecedenceMulBindsTighterThanAdd(t *testing.T) {
	p := New("1 + 2 * 3;")
	_ = p
	e := p.ParseExpr()
	got := p.tree.Exprs[e]
	if got.Kind != ast.ExprBinary || token.Kind(got.Op) != token.Plus {
		t.Fatalf("top node = %+v, want '+' binary", got)
	}
	right := p.tree.Exprs[got.B]
	if right.Kind != ast.ExprBinary || token.Kind(right.Op) != token.Star {
		t.Fatalf("rhs = %+v, want '*' binary", right)
	}
}

func TestParseExprAssignmentIsRightAssociative(t *testing.T) {
	p := New("a = b = 3;")
	e := p.ParseExpr()
	got := p.tree.Exprs[e]
	if got.Kind != ast.ExprAssign {
		t.Fatalf("top node = %+v, want assign", got)
	}
	rhs := p.tree.Exprs[got.B]
	if rhs.Kind != ast.ExprAssign {
		t.Fatalf("rhs = %+v, want nested assign", rhs)
	}
}

func TestParseExprTernaryRightAssociative(t *testing.T) {
	p := New("a ? b : c ? d : e;")
	e := p.ParseExpr()
	got := p.tree.Exprs[e]
	if got.Kind != ast.ExprCond {
		t.Fatalf("top node = %+v, want ternary", got)
	}
	els := p.tree.Exprs[got.C]
	if els.Kind != ast.ExprCond {
		t.Fatalf("else-branch = %+v, want nested ternary", els)
	}
}

func TestParseExprCommaLowestPrecedence(t *testing.T) {
	p := New("a = 1, b = 2;")
	e := p.ParseExpr()
	got := p.tree.Exprs[e]
	if got.Kind != ast.ExprComma {
		t.Fatalf("top node = %+v, want comma", got)
	}
}

func TestParseCallWithArgsDoesNotSwallowComma(t *testing.T) {
	p := New("f(1, 2, 3);")
	e := p.ParseExpr()
	got := p.tree.Exprs[e]
	if got.Kind != ast.ExprCall {
		t.Fatalf("top node = %+v, want call", got)
	}
	if len(got.Args) != 3 {
		t.Fatalf("args = %v, want 3 args", got.Args)
	}
}

func TestParseIfElseStmt(t *testing.T) {
	p := New("if (x) y = 1; else y = 2;")
	s := p.parseStmt()
	got := p.tree.Stmts[s]
	if got.Kind != ast.StmtIf || got.Else == -1 {
		t.Fatalf("stmt = %+v, want if/else", got)
	}
}

func TestParseForLoopWithDeclareInit(t *testing.T) {
	p := New("for (int i = 0; i < 10; i = i + 1) { }")
	s := p.parseStmt()
	got := p.tree.Stmts[s]
	if got.Kind != ast.StmtFor {
		t.Fatalf("stmt = %+v, want for", got)
	}
	init := p.tree.Stmts[got.Init]
	if init.Kind != ast.StmtDeclare || init.DeclName != "i" {
		t.Fatalf("for-init = %+v, want declare i", init)
	}
}

func TestParseDoWhileStmt(t *testing.T) {
	p := New("do { x = x + 1; } while (x < 5);")
	s := p.parseStmt()
	got := p.tree.Stmts[s]
	if got.Kind != ast.StmtDoWhile {
		t.Fatalf("stmt = %+v, want do-while", got)
	}
}

func TestParseDeclareWithPointer(t *testing.T) {
	p := New("int *p;")
	s := p.parseStmt()
	got := p.tree.Stmts[s]
	if got.Kind != ast.StmtDeclare {
		t.Fatalf("stmt = %+v, want declare", got)
	}
	if got.DeclType.Kind != ast.TypePointer {
		t.Fatalf("decl type = %+v, want pointer", got.DeclType)
	}
	elem := p.tree.Types[got.DeclType.Elem]
	if elem.Kind != ast.TypeInt {
		t.Fatalf("pointee = %+v, want int", elem)
	}
}

func TestParseDeclareArrayWithLength(t *testing.T) {
	p := New("char buf[16];")
	s := p.parseStmt()
	got := p.tree.Stmts[s]
	if got.DeclType.Kind != ast.TypeArray || got.DeclType.ArrayLen != 16 {
		t.Fatalf("decl type = %+v, want array[16]", got.DeclType)
	}
}

func TestParseTopLevelFunctionDefinition(t *testing.T) {
	p := New("int add(int a, int b) { return a + b; }")
	tr := p.Parse()
	if len(p.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors())
	}
	if len(tr.Funcs) != 1 {
		t.Fatalf("funcs = %v, want 1", tr.Funcs)
	}
	fn := tr.Funcs[0]
	if fn.Name != "add" || !fn.IsDefined || len(fn.Params) != 2 {
		t.Fatalf("fn = %+v, want defined add/2 params", fn)
	}
	if fn.Params[0].Name != "a" || fn.Params[1].Name != "b" {
		t.Fatalf("params = %+v", fn.Params)
	}
}

func TestParseTopLevelFunctionPrototype(t *testing.T) {
	p := New("void puts(char *s);")
	tr := p.Parse()
	if len(tr.Funcs) != 1 || tr.Funcs[0].IsDefined {
		t.Fatalf("funcs = %+v, want one undefined prototype", tr.Funcs)
	}
}

func TestParseTopLevelGlobalWithInitializer(t *testing.T) {
	p := New("int counter = 0;")
	tr := p.Parse()
	if len(tr.Globals) != 1 {
		t.Fatalf("globals = %v, want 1", tr.Globals)
	}
	g := tr.Globals[0]
	if g.Name != "counter" || g.Init == -1 {
		t.Fatalf("global = %+v, want counter with initializer", g)
	}
}

func TestParseTypedefIsSubstitutedInLaterDeclarations(t *testing.T) {
	p := New("typedef int myint; myint x;")
	tr := p.Parse()
	if len(p.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors())
	}
	if len(tr.Globals) != 1 || tr.Globals[0].Type.Kind != ast.TypeInt {
		t.Fatalf("globals = %+v, want one int global via typedef", tr.Globals)
	}
}

func TestParseErrorRecoversAndContinuesAtNextTopLevel(t *testing.T) {
	p := New("int a = ; int b = 2;")
	tr := p.Parse()
	if len(p.Errors()) == 0 {
		t.Fatalf("expected a recorded error")
	}
	if len(tr.Globals) != 2 {
		t.Fatalf("globals = %+v, want 2 despite error in first", tr.Globals)
	}
}

// parseTxtarExpectations reads an archive comment of the form
//
//	funcs: add, main
//	globals: counter
//
// into a map from key to its comma-separated, whitespace-trimmed values.
func parseTxtarExpectations(comment []byte) map[string][]string {
	want := make(map[string][]string)
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
		want[strings.TrimSpace(key)] = vals
	}
	return want
}

func names(vals []string) string { return strings.Join(vals, ",") }

// TestParseTxtarFixtures runs every compiler/parser/testdata/*.txtar fixture
// through Parse and checks its top-level function and global names against
// the archive's comment header, the same "key: a, b" manifest line format
// compiler/codegen and compiler/linker's fixtures use with their own keys.
func TestParseTxtarFixtures(t *testing.T) {
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
			want := parseTxtarExpectations(a.Comment)

			var src []byte
			for _, f := range a.Files {
				if f.Name == "main.c" {
					src = f.Data
				}
			}
			if src == nil {
				t.Fatalf("fixture %s has no main.c file", path)
			}

			p := New(string(src))
			tr := p.Parse()
			if errs := p.Errors(); len(errs) != 0 {
				t.Fatalf("unexpected parse errors: %v", errs)
			}

			var gotFuncs []string
			for _, fn := range tr.Funcs {
				gotFuncs = append(gotFuncs, fn.Name)
			}
			var gotGlobals []string
			for _, g := range tr.Globals {
				gotGlobals = append(gotGlobals, g.Name)
			}

			if names(gotFuncs) != names(want["funcs"]) {
				t.Errorf("funcs = %v, want %v", gotFuncs, want["funcs"])
			}
			if names(gotGlobals) != names(want["globals"]) {
				t.Errorf("globals = %v, want %v", gotGlobals, want["globals"])
			}
		})
	}
}

func TestParseUnterminatedExpressionStopsWithoutPanicking(t *testing.T) {
	p := New("int a = (1 + 2;")
	_ = p.Parse()
	if len(p.Errors()) == 0 {
		t.Fatalf("expected a recorded error for the missing ')'")
	}
}
