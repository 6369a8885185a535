// Package prompttest provides a scripted prompt.Prompter for tests.
package prompttest

import (
	"fmt"

	"github.com/edvin/homeproxy/internal/prompt"
)

var _ prompt.Prompter = (*Scripted)(nil)

// Scripted answers prompts from a fixed queue, in order. Each answer must
// match the prompt kind: string for Ask and Secret, bool for Confirm, int for
// Select, []int for MultiSelect. Asked records every label.
type Scripted struct {
	Answers []any
	Asked   []string
}

func NewScripted(answers ...any) *Scripted {
	return &Scripted{Answers: answers}
}

func (s *Scripted) next(label string) (any, error) {
	s.Asked = append(s.Asked, label)
	if len(s.Answers) == 0 {
		return nil, fmt.Errorf("unexpected prompt %q: %w", label, prompt.ErrAborted)
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

func (s *Scripted) Ask(label, def string, validate func(string) error) (string, error) {
	a, err := s.next(label)
	if err != nil {
		return "", err
	}
	answer, ok := a.(string)
	if !ok {
		return "", fmt.Errorf("prompt %q: scripted answer %v is not a string", label, a)
	}
	if answer == "" {
		answer = def
	}
	if validate != nil {
		if err := validate(answer); err != nil {
			return "", fmt.Errorf("prompt %q: %w", label, err)
		}
	}
	return answer, nil
}

func (s *Scripted) Confirm(label string, def bool) (bool, error) {
	a, err := s.next(label)
	if err != nil {
		return false, err
	}
	answer, ok := a.(bool)
	if !ok {
		return false, fmt.Errorf("prompt %q: scripted answer %v is not a bool", label, a)
	}
	return answer, nil
}

func (s *Scripted) Secret(label string) (string, error) {
	a, err := s.next(label)
	if err != nil {
		return "", err
	}
	answer, ok := a.(string)
	if !ok {
		return "", fmt.Errorf("prompt %q: scripted answer %v is not a string", label, a)
	}
	return answer, nil
}

func (s *Scripted) Select(label string, options []string, def int) (int, error) {
	a, err := s.next(label)
	if err != nil {
		return 0, err
	}
	answer, ok := a.(int)
	if !ok || answer < 0 || answer >= len(options) {
		return 0, fmt.Errorf("prompt %q: scripted answer %v is not a valid option index", label, a)
	}
	return answer, nil
}

func (s *Scripted) MultiSelect(label string, options []string) ([]int, error) {
	a, err := s.next(label)
	if err != nil {
		return nil, err
	}
	answer, ok := a.([]int)
	if !ok {
		return nil, fmt.Errorf("prompt %q: scripted answer %v is not []int", label, a)
	}
	for _, i := range answer {
		if i < 0 || i >= len(options) {
			return nil, fmt.Errorf("prompt %q: option %d out of range", label, i)
		}
	}
	return answer, nil
}
