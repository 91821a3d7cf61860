// Package cli holds the interactive prompts of the typestate command.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/manifoldco/promptui"
	"gopkg.in/yaml.v3"
)

// Quit is the pseudo event offered by SelectEvent to leave the loop.
const Quit = "(quit)"

// PromptConfirm asks a yes/no question. Anything but yes is false.
func PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// SelectEvent asks for one of the events the view can dispatch. It returns
// Quit when the user picks it or interrupts the prompt.
func SelectEvent(view statemachine.View) (string, error) {
	items := append(view.Events(), Quit)

	prompt := promptui.Select{
		Label: fmt.Sprintf("Event (in %s)", view.Current),
		Items: items,
		Size:  min(len(items), 10), //nolint:mnd
		Searcher: func(input string, index int) bool {
			return strings.Contains(strings.ToLower(items[index]), strings.ToLower(input))
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}

	_, event, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return Quit, nil
		}

		return "", err
	}

	return event, nil
}

// PromptPayload asks for an optional payload, written as YAML.
func PromptPayload(event string) ([]any, error) {
	prompt := promptui.Prompt{
		Label: "Payload for " + event + " (YAML, empty for none)",
		Validate: func(s string) error {
			_, err := ParsePayload(s)

			return err
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}

	text, err := prompt.Run()
	if err != nil {
		return nil, err
	}

	return ParsePayload(text)
}

// ParsePayload decodes text as a single YAML value. Blank text is no payload.
func ParsePayload(text string) ([]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var value any
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	return []any{value}, nil
}
