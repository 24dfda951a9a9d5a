package lexer

import "testing"

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := New([]byte(src))
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("unexpected lex error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == KindEOF {
			return toks
		}
	}
}

func TestKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "module Not test clock foo_bar")
	want := []Kind{KindKeyword, KindIdent, KindKeyword, KindKeyword, KindIdent, KindEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestStructuralSymbols(t *testing.T) {
	toks := lexAll(t, "->") // lexer sees '-' then '>' as two symbols
	if len(toks) != 3 || toks[0].Text != "-" || toks[1].Text != ">" {
		t.Fatalf("got %+v", toks[:2])
	}
}

func TestIntLiteral(t *testing.T) {
	toks := lexAll(t, "42")
	if toks[0].Kind != KindInt || toks[0].IntVal != 42 {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestByteAndWordLiterals(t *testing.T) {
	toks := lexAll(t, "0b101 0w1111000011110000")
	if toks[0].Kind != KindByte || toks[0].IntVal != 5 {
		t.Fatalf("byte literal: got %+v", toks[0])
	}
	if toks[1].Kind != KindWord || toks[1].IntVal != 0xF0F0 {
		t.Fatalf("word literal: got %+v", toks[1])
	}
}

func TestComments(t *testing.T) {
	toks := lexAll(t, "a // line comment\nb /* block\ncomment */ c")
	if len(toks) != 4 {
		t.Fatalf("got %d tokens, want 4 idents+eof: %+v", len(toks), toks)
	}
	if toks[0].Text != "a" || toks[1].Text != "b" || toks[2].Text != "c" {
		t.Fatalf("got %+v", toks)
	}
}

func TestLineTracking(t *testing.T) {
	toks := lexAll(t, "a\nb\n\nc")
	lines := map[string]int{"a": 1, "b": 2, "c": 4}
	for _, tok := range toks {
		if tok.Kind == KindEOF {
			continue
		}
		if want, ok := lines[tok.Text]; ok && tok.Line != want {
			t.Errorf("token %q: line %d, want %d", tok.Text, tok.Line, want)
		}
	}
}

func TestEOFRepeats(t *testing.T) {
	l := New([]byte(""))
	t1, _ := l.Next()
	t2, _ := l.Next()
	if t1.Kind != KindEOF || t2.Kind != KindEOF {
		t.Fatalf("expected repeated eof, got %+v %+v", t1, t2)
	}
}

func TestUnrecognizedCharacter(t *testing.T) {
	l := New([]byte("$"))
	_, err := l.Next()
	if err == nil {
		t.Fatalf("expected error for unrecognized character")
	}
}
