package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/fkohlgrueber/format-galaxy/internal/selection"
)

// huhPrompter renders the three selection questions as terminal menus.
type huhPrompter struct{}

const (
	choiceBack = -1
	choiceExit = -2
)

func runMenu(title string, options []huh.Option[int]) (selection.Answer, error) {
	var choice int
	err := huh.NewSelect[int]().
		Title(title).
		Options(options...).
		Value(&choice).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return selection.Answer{Kind: selection.AnswerExit}, nil
		}
		return selection.Answer{}, err
	}

	switch choice {
	case choiceBack:
		return selection.Answer{Kind: selection.AnswerBack}, nil
	case choiceExit:
		return selection.Answer{Kind: selection.AnswerExit}, nil
	default:
		return selection.Answer{Kind: selection.AnswerPicked, Index: choice}, nil
	}
}

func menuOptions(options []selection.Option, allowBack bool) []huh.Option[int] {
	items := make([]huh.Option[int], 0, len(options)+2)
	for i, o := range options {
		label := o.Name
		if o.Desc != "" {
			label = fmt.Sprintf("%s: %s", o.Name, o.Desc)
		}
		items = append(items, huh.NewOption(label, i))
	}
	if allowBack {
		items = append(items, huh.NewOption("(back)", choiceBack))
	}
	return append(items, huh.NewOption("(exit)", choiceExit))
}

func (p *huhPrompter) PickFormat(options []selection.Option) (selection.Answer, error) {
	return runMenu("Please select a format:", menuOptions(options, false))
}

func (p *huhPrompter) PickConverter(formatName string, options []selection.Option, allowBack bool) (selection.Answer, error) {
	title := fmt.Sprintf("File format: %s. Please select a converter:", formatName)
	return runMenu(title, menuOptions(options, allowBack))
}

func (p *huhPrompter) PickVersion(labels []string) (selection.Answer, error) {
	options := make([]selection.Option, len(labels))
	for i, label := range labels {
		options[i] = selection.Option{Name: label}
	}
	return runMenu("Please select a version:", menuOptions(options, true))
}
