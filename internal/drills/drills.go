// Package drills defines the immutable drill content model: drills, prompts,
// and the grading rules for participant answers.
//
// Drill content is loaded once at process start (see catalog.go) and treated
// as read-only from then on. Dialog state snapshots the full drill value, so
// later catalog edits never affect a conversation that is already in flight.
package drills

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultMaxFailures is the number of wrong answers tolerated before a graded
// prompt is abandoned.
const DefaultMaxFailures = 1

var (
	ErrEmptyDrillSlug  = errors.New("drill slug cannot be empty")
	ErrNoPrompts       = errors.New("drill must contain at least one prompt")
	ErrEmptyPromptSlug = errors.New("prompt slug cannot be empty")
	ErrNoMessages      = errors.New("prompt must contain at least one message")
)

// PromptMessage is one outbound message part of a prompt.
type PromptMessage struct {
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

// Prompt is a single step of a drill. A prompt with a CorrectResponse is
// graded; a prompt with a ResponseUserProfileKey stores the raw answer into
// that profile slot; a prompt with neither is informational.
type Prompt struct {
	Slug                   string          `json:"slug"`
	Messages               []PromptMessage `json:"messages"`
	ResponseUserProfileKey string          `json:"response_user_profile_key,omitempty"`
	CorrectResponse        string          `json:"correct_response,omitempty"`
	MaxFailures            int             `json:"max_failures,omitempty"`
}

// ShouldAdvanceWith reports whether the given answer completes the prompt.
// Ungraded prompts accept any answer. Graded prompts compare the normalized
// answer against the localized correct response.
func (p Prompt) ShouldAdvanceWith(answer, lang string, loc *Localizer) bool {
	if p.CorrectResponse == "" {
		return true
	}
	correct := p.CorrectResponse
	if loc != nil {
		correct = loc.Localize(p.CorrectResponse, lang)
	}
	return isCorrectResponse(answer, correct)
}

// StoresAnswer reports whether the raw answer should be written into the user
// profile on completion.
func (p Prompt) StoresAnswer() bool {
	return p.ResponseUserProfileKey != ""
}

// Failures tolerated before abandonment.
func (p Prompt) FailureLimit() int {
	if p.MaxFailures <= 0 {
		return DefaultMaxFailures
	}
	return p.MaxFailures
}

// Validate checks structural requirements for a prompt.
func (p Prompt) Validate() error {
	if p.Slug == "" {
		return ErrEmptyPromptSlug
	}
	if len(p.Messages) == 0 {
		return fmt.Errorf("prompt %s: %w", p.Slug, ErrNoMessages)
	}
	return nil
}

// Drill is an ordered sequence of prompts identified by a catalog slug.
type Drill struct {
	Slug    string   `json:"slug"`
	Name    string   `json:"name"`
	Prompts []Prompt `json:"prompts"`
}

// FirstPrompt returns the drill's opening prompt.
func (d Drill) FirstPrompt() Prompt {
	return d.Prompts[0]
}

// GetPrompt returns the prompt with the given slug.
func (d Drill) GetPrompt(slug string) (Prompt, error) {
	for _, p := range d.Prompts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Prompt{}, fmt.Errorf("drill %s has no prompt %s", d.Slug, slug)
}

// PromptAfter returns the prompt following the given slug, or false if the
// slug names the last prompt.
func (d Drill) PromptAfter(slug string) (Prompt, bool) {
	for i, p := range d.Prompts {
		if p.Slug == slug && i+1 < len(d.Prompts) {
			return d.Prompts[i+1], true
		}
	}
	return Prompt{}, false
}

// IsLastPrompt reports whether the slug names the drill's final prompt.
func (d Drill) IsLastPrompt(slug string) bool {
	if len(d.Prompts) == 0 {
		return false
	}
	return d.Prompts[len(d.Prompts)-1].Slug == slug
}

// Validate checks structural requirements for a drill and its prompts.
func (d Drill) Validate() error {
	if d.Slug == "" {
		return ErrEmptyDrillSlug
	}
	if len(d.Prompts) == 0 {
		return fmt.Errorf("drill %s: %w", d.Slug, ErrNoPrompts)
	}
	for _, p := range d.Prompts {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// isCorrectResponse compares a participant answer against the expected one.
// Both sides are lowercased and stripped of punctuation and surrounding
// whitespace, so "A)", "a", and " a. " all match a correct response of "a".
func isCorrectResponse(answer, correct string) bool {
	return normalizeResponse(answer) == normalizeResponse(correct)
}

func normalizeResponse(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(strings.ToLower(s)) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
