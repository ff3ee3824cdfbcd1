package token

import "testing"

func TestKeywordLookup(t *testing.T) {
	k, ok := Lookup("return")
	if !ok || k != KwReturn {
		t.Errorf("expected KwReturn, got %v ok=%v", k, ok)
	}
	if _, ok := Lookup("myVar"); ok {
		t.Error("expected myVar to not be a keyword")
	}
}

func TestStringTableInternAndOffset0Empty(t *testing.T) {
	st := NewStringTable()
	if st.String(0) != "" {
		t.Errorf("expected offset 0 to be empty string, got %q", st.String(0))
	}
	off := st.Intern("hello")
	if got := st.String(off); got != "hello" {
		t.Errorf("got %q want %q", got, "hello")
	}
	off2 := st.Intern("world")
	if got := st.String(off2); got != "world" {
		t.Errorf("got %q want %q", got, "world")
	}
	if off == off2 {
		t.Error("distinct interned strings must get distinct offsets")
	}
}
