package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		line string
		want Classification
	}{
		{name: "define", line: `define e = Character("Eileen")`, want: SkipKeyword},
		{name: "indented label", line: "    label start:", want: SkipKeyword},
		{name: "scene", line: "    scene bg room", want: SkipKeyword},
		{name: "python line", line: `    $ renpy.notify("Saved")`, want: SkipKeyword},
		{name: "comment", line: `    # e "Hello"`, want: SkipKeyword},
		{name: "translate opener", line: "translate spanish start_1a2b:", want: SkipKeyword},
		{name: "else colon", line: "    else:", want: SkipKeyword},
		{name: "bare return", line: "    return", want: SkipKeyword},
		{name: "variable", line: `    "Press [key] to continue"`, want: SkipStructural},
		{name: "text tag", line: `    e "{b}Bold{/b} move"`, want: SkipStructural},
		{name: "lone closing bracket", line: `    "oops]"`, want: SkipStructural},
		{name: "keyword wins over bracket", line: `    show eileen at [left]`, want: SkipKeyword},
		{name: "dialogue", line: `    "Hello, friend!"`, want: TranslateCandidate},
		{name: "say statement", line: `    e "Hi there"`, want: TranslateCandidate},
		{name: "keyword prefix of word", line: `    showtime "It's showtime"`, want: TranslateCandidate},
		{name: "new line", line: `    new "Start"`, want: TranslateCandidate},
		{name: "blank", line: "", want: TranslateCandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.line))
		})
	}
}

func TestClassifier_Options(t *testing.T) {
	c := NewClassifier(WithKeywords([]string{"@say"}), WithStructuralRunes("<>"))

	assert.Equal(t, SkipKeyword, c.Classify("@say hello"))
	assert.Equal(t, TranslateCandidate, c.Classify(`define x = "y"`))
	assert.Equal(t, TranslateCandidate, c.Classify(`"Press [key]"`))
	assert.Equal(t, SkipStructural, c.Classify(`"<b>bold</b>"`))
}

func TestLine_Indent(t *testing.T) {
	assert.Equal(t, "    ", Line{Text: `    "Hi"`}.Indent())
	assert.Equal(t, "\t", Line{Text: "\tlabel a:"}.Indent())
	assert.Equal(t, "", Line{Text: "label a:"}.Indent())
	assert.Equal(t, "  ", Line{Text: "  "}.Indent())
}
