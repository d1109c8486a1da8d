package tokenizer

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnalyze(t *testing.T) {
	cases := []struct {
		line      string
		normalize Normalizer
		expected  []Token
	}{
		{
			line:      "the quick  brown\tfox",
			normalize: Identity,
			expected: []Token{
				{Term: "the", Position: 0},
				{Term: "quick", Position: 1},
				{Term: "brown", Position: 2},
				{Term: "fox", Position: 3},
			},
		},
		{
			line:      "  leading and trailing  ",
			normalize: nil,
			expected: []Token{
				{Term: "leading", Position: 0},
				{Term: "and", Position: 1},
				{Term: "trailing", Position: 2},
			},
		},
		{
			line:      "",
			normalize: Stem,
			expected:  []Token{},
		},
		{
			line:      "Running Cats",
			normalize: Chain(Lowercase, Stem),
			expected: []Token{
				{Term: "run", Position: 0},
				{Term: "cat", Position: 1},
			},
		},
		{
			line:      "drop keep",
			normalize: func(s string) string { return map[string]string{"keep": "kept"}[s] },
			expected: []Token{
				{Term: "drop", Position: 0},
				{Term: "kept", Position: 1},
			},
		},
	}
	for _, tt := range cases {
		t.Run(fmt.Sprintf("line = %q", tt.line), func(t *testing.T) {
			got := NewAnalyzer(tt.normalize).Analyze(tt.line)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Diff: (-want +got)\n%s", diff)
			}
		})
	}
}

func TestStemmingKeepsTokenCount(t *testing.T) {
	line := "connections connected connecting the a of ponies caresses"
	plain := NewAnalyzer(Identity).Terms(line)
	stemmed := NewAnalyzer(Stem).Terms(line)
	if len(plain) != len(stemmed) {
		t.Fatalf("stemming changed token count: %d != %d", len(plain), len(stemmed))
	}
	want := []string{"connect", "connect", "connect", "the", "a", "of", "poni", "caress"}
	if diff := cmp.Diff(want, stemmed); diff != "" {
		t.Errorf("Diff: (-want +got)\n%s", diff)
	}
}

func TestNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	if got, want := NFC(decomposed), "caf\u00e9"; got != want {
		t.Errorf("NFC(%q) = %q, want %q", decomposed, got, want)
	}
}

func TestByNames(t *testing.T) {
	n, err := ByNames([]string{"lowercase", " STEM "})
	if err != nil {
		t.Fatalf("ByNames: %v", err)
	}
	if got := n("Houses"); got != "hous" {
		t.Errorf("chain(Houses) = %q, want hous", got)
	}
	empty, err := ByNames(nil)
	if err != nil {
		t.Fatalf("ByNames(nil): %v", err)
	}
	if got := empty("Houses"); got != "Houses" {
		t.Errorf("identity(Houses) = %q", got)
	}
	if _, err := ByNames([]string{"porter"}); err == nil {
		t.Error("expected error for unknown normalizer")
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := NewAnalyzer(Chain(NFC, Lowercase, Stem))
	line := "Distributed indexing of large corpora produces positional postings"
	first := a.Analyze(line)
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(first, a.Analyze(line)); diff != "" {
			t.Fatalf("run %d differs:\n%s", i, diff)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	a := NewAnalyzer(Stem)
	line := "information retrieval systems combine tokenization stemming and positional postings"
	b.ReportAllocs()
	b.SetBytes(int64(len(line)))
	for i := 0; i < b.N; i++ {
		_ = a.Analyze(line)
	}
}

func TestZeroValueAnalyzer(t *testing.T) {
	var a Analyzer
	want := []Token{{Term: "Running", Position: 0}, {Term: "dogs", Position: 1}}
	if diff := cmp.Diff(want, a.Analyze("Running  dogs")); diff != "" {
		t.Errorf("Diff: (-want +got)\n%s", diff)
	}
}
