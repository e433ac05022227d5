package drills

import "testing"

func gradedPrompt() Prompt {
	return Prompt{
		Slug:            "quiz",
		Messages:        []PromptMessage{{Text: "Pick A, B, or C"}},
		CorrectResponse: "b",
	}
}

func TestShouldAdvanceWithUngradedPromptAcceptsAnything(t *testing.T) {
	p := Prompt{Slug: "intro", Messages: []PromptMessage{{Text: "Welcome"}}}
	for _, answer := range []string{"", "anything", "no"} {
		if !p.ShouldAdvanceWith(answer, "en", nil) {
			t.Errorf("ungraded prompt rejected %q", answer)
		}
	}
}

func TestShouldAdvanceWithNormalization(t *testing.T) {
	p := gradedPrompt()
	cases := []struct {
		answer string
		want   bool
	}{
		{"b", true},
		{"B", true},
		{" b. ", true},
		{"B)", true},
		{"a", false},
		{"bb", false},
		{"", false},
	}
	for _, c := range cases {
		if got := p.ShouldAdvanceWith(c.answer, "en", nil); got != c.want {
			t.Errorf("ShouldAdvanceWith(%q) = %v, want %v", c.answer, got, c.want)
		}
	}
}

func TestShouldAdvanceWithLocalizedCorrectResponse(t *testing.T) {
	loc := NewLocalizer(map[string]map[string]string{
		"en": {"yes_label": "yes"},
		"es": {"yes_label": "si"},
	})
	p := Prompt{
		Slug:            "confirm",
		Messages:        []PromptMessage{{Text: "Confirm?"}},
		CorrectResponse: "{{.yes_label}}",
	}
	if !p.ShouldAdvanceWith("si", "es", loc) {
		t.Error("spanish correct answer rejected")
	}
	if p.ShouldAdvanceWith("si", "en", loc) {
		t.Error("spanish answer accepted against english correct response")
	}
	if !p.ShouldAdvanceWith("yes", "en", loc) {
		t.Error("english correct answer rejected")
	}
}

func TestFailureLimitDefaults(t *testing.T) {
	p := gradedPrompt()
	if got := p.FailureLimit(); got != DefaultMaxFailures {
		t.Errorf("FailureLimit() = %d, want %d", got, DefaultMaxFailures)
	}
	p.MaxFailures = 3
	if got := p.FailureLimit(); got != 3 {
		t.Errorf("FailureLimit() = %d, want 3", got)
	}
}

func TestStoresAnswer(t *testing.T) {
	p := Prompt{Slug: "rate", Messages: []PromptMessage{{Text: "Rate 1-10"}}, ResponseUserProfileKey: "self_rating_1"}
	if !p.StoresAnswer() {
		t.Error("prompt with profile key should store answers")
	}
	if gradedPrompt().StoresAnswer() {
		t.Error("prompt without profile key should not store answers")
	}
}

func testDrill() Drill {
	return Drill{
		Slug: "basics",
		Name: "Basics",
		Prompts: []Prompt{
			{Slug: "one", Messages: []PromptMessage{{Text: "First"}}},
			{Slug: "two", Messages: []PromptMessage{{Text: "Second"}}, CorrectResponse: "a"},
			{Slug: "three", Messages: []PromptMessage{{Text: "Last"}}},
		},
	}
}

func TestDrillPromptNavigation(t *testing.T) {
	d := testDrill()
	if got := d.FirstPrompt().Slug; got != "one" {
		t.Errorf("FirstPrompt() = %s, want one", got)
	}
	next, ok := d.PromptAfter("one")
	if !ok || next.Slug != "two" {
		t.Errorf("PromptAfter(one) = %v, %v", next.Slug, ok)
	}
	if _, ok := d.PromptAfter("three"); ok {
		t.Error("PromptAfter(last) should report false")
	}
	if !d.IsLastPrompt("three") {
		t.Error("IsLastPrompt(three) should be true")
	}
	if d.IsLastPrompt("one") {
		t.Error("IsLastPrompt(one) should be false")
	}
	if _, err := d.GetPrompt("missing"); err == nil {
		t.Error("GetPrompt(missing) should error")
	}
}

func TestDrillValidate(t *testing.T) {
	if err := testDrill().Validate(); err != nil {
		t.Errorf("valid drill rejected: %v", err)
	}
	bad := Drill{Slug: "", Prompts: []Prompt{{Slug: "x", Messages: []PromptMessage{{Text: "t"}}}}}
	if err := bad.Validate(); err == nil {
		t.Error("empty slug should fail validation")
	}
	empty := Drill{Slug: "empty"}
	if err := empty.Validate(); err == nil {
		t.Error("drill without prompts should fail validation")
	}
	noMsg := Drill{Slug: "d", Prompts: []Prompt{{Slug: "p"}}}
	if err := noMsg.Validate(); err == nil {
		t.Error("prompt without messages should fail validation")
	}
}

func TestNormalizeResponse(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Hello, World!  ", "hello world"},
		{"A)", "a"},
		{"two  words", "two words"},
	}
	for _, c := range cases {
		if got := normalizeResponse(c.in); got != c.want {
			t.Errorf("normalizeResponse(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
