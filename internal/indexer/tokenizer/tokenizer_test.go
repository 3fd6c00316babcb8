package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDefault(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercase", "Data IS Data", []string{"data", "is", "data"}},
		{"punctuation runs", "hello,,, world!!--foo", []string{"hello", "world", "foo"}},
		{"single chars kept", "a b c", []string{"a", "b", "c"}},
		{"digits", "v2 release 2024", []string{"v2", "release", "2024"}},
		{"control chars", "tab\there\nnew\x00line", []string{"tab", "here", "new", "line"}},
		{"unicode letters", "Überstraße café", []string{"überstraße", "café"}},
		{"empty", "", []string{}},
		{"only punctuation", "!!! ... ???", []string{}},
		{"markdown", "## Getting-Started `demo.py`", []string{"getting", "started", "demo", "py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Default.Terms(tt.text))
		})
	}
}

func TestPositionsAreSequential(t *testing.T) {
	tokens := Tokenize("one, two; three")
	assert.Equal(t, []Token{
		{Term: "one", Position: 0},
		{Term: "two", Position: 1},
		{Term: "three", Position: 2},
	}, tokens)
}

func TestTokensIsRestartable(t *testing.T) {
	seq := Tokens("metadata about data pipelines")
	var first, second []string
	for tok := range seq {
		first = append(first, tok.Term)
	}
	for tok := range seq {
		second = append(second, tok.Term)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestTokensStopsEarly(t *testing.T) {
	count := 0
	for range Tokens("a b c d e f") {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestAnalyzerPolicy(t *testing.T) {
	a := Analyzer{StopWords: true, MinLength: 2, Stem: true}
	assert.Equal(t, []string{"search", "system", "index", "document"},
		a.Terms("The searching systems are indexing a document"))

	positions := a.Tokenize("the quick fox")
	assert.Equal(t, 0, positions[0].Position, "positions count only emitted tokens")
}
