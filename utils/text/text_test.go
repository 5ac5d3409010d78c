package text

import "testing"

func TestSplitSentence(t *testing.T) {
	cases := []struct {
		in        string
		ready     string
		remainder string
	}{
		{"Hello there. General Kenobi", "Hello there.", " General Kenobi"},
		{"Is that so? Indeed", "Is that so?", " Indeed"},
		{"Wow! Amazing", "Wow!", " Amazing"},
		{"no terminal here", "", "no terminal here"},
		{"", "", ""},
		{".", ".", ""},
		{"a.b.c.", "a.", "b.c."},
	}
	for _, c := range cases {
		ready, remainder := SplitSentence(c.in)
		if ready != c.ready || remainder != c.remainder {
			t.Errorf("SplitSentence(%q) = (%q, %q), want (%q, %q)",
				c.in, ready, remainder, c.ready, c.remainder)
		}
	}
}

func TestSplitSentenceReconstruction(t *testing.T) {
	inputs := []string{
		"One. Two? Three!",
		"streaming text with no end yet",
		"?leading terminal",
		"multi\nline. text",
	}
	for _, in := range inputs {
		ready, remainder := SplitSentence(in)
		if ready+remainder != in {
			t.Errorf("SplitSentence(%q): ready+remainder = %q, want original", in, ready+remainder)
		}
	}
}

func TestSplitSentenceEmptyReadyIffNoTerminal(t *testing.T) {
	ready, _ := SplitSentence("still going")
	if ready != "" {
		t.Errorf("expected empty ready for terminal-free input, got %q", ready)
	}
	ready, _ = SplitSentence("done.")
	if ready == "" {
		t.Error("expected non-empty ready for input with terminal")
	}
}

func TestSanitizeSpoken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"*chuckles* Well then.", "Well then."},
		{"**bold** and `code`", "bold and code"},
		{"plain   spaced    text", "plain spaced text"},
		{"# Heading one", "Heading one"},
		{"unbalanced *star stays out", "unbalanced star stays out"},
	}
	for _, c := range cases {
		got := SanitizeSpoken(c.in)
		if got != c.want {
			t.Errorf("SanitizeSpoken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
