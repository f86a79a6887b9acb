// Package selection narrows the catalog to the converters that can
// handle an input file and drives the caller to a unique
// (format, converter, version) triple.
package selection

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/fkohlgrueber/format-galaxy/internal/catalog"
	"github.com/fkohlgrueber/format-galaxy/internal/filetype"
)

// Selection is the outcome: a fully pinned triple. VersionIndex is an
// index into the stored version sequence, regardless of display order.
type Selection struct {
	Format       catalog.FormatID
	Converter    catalog.ConverterID
	VersionIndex int
}

// NoCandidateError indicates the candidate set came up empty with the
// fallback disabled.
type NoCandidateError struct {
	Ext string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no candidate converter for extension %q", e.Ext)
}

// AnswerKind is the outcome of a single prompt.
type AnswerKind int

const (
	AnswerPicked AnswerKind = iota
	AnswerBack
	AnswerExit
)

// Answer carries a prompt outcome; Index is meaningful for
// AnswerPicked only and refers to the displayed option order.
type Answer struct {
	Kind  AnswerKind
	Index int
}

// Option is one selectable entry, shown with its display name.
type Option struct {
	Name string
	Desc string
}

// Prompter is the interface to whoever answers the three questions: an
// interactive menu, a test script, or a caller that pinned everything.
// Back is only offered where the protocol allows going back.
type Prompter interface {
	PickFormat(options []Option) (Answer, error)
	PickConverter(formatName string, options []Option, allowBack bool) (Answer, error)
	// PickVersion shows labels newest-first.
	PickVersion(labels []string) (Answer, error)
}

// formatCandidate pairs an id with its entry in a stable display order.
type formatCandidate struct {
	id    catalog.FormatID
	entry catalog.FormatEntry
}

// Candidates computes the formats offered for a file type. The second
// result reports whether the extension matched nothing and the set fell
// back to all formats (an advisory for the UI).
func Candidates(cat *catalog.Catalog, ft filetype.FileType, allowFallback bool) ([]catalog.FormatID, bool, error) {
	switch ft := ft.(type) {
	case filetype.Tagged:
		if _, err := cat.Format(ft.Format); err != nil {
			return nil, false, err
		}
		return []catalog.FormatID{ft.Format}, false, nil

	case filetype.Untagged:
		if !ft.HasExt {
			return allFormats(cat), false, nil
		}
		var matched []catalog.FormatID
		for fid, entry := range cat.Formats {
			for _, ext := range entry.Extensions {
				if ext == ft.Ext {
					matched = append(matched, fid)
					break
				}
			}
		}
		if len(matched) == 0 {
			if !allowFallback {
				return nil, false, &NoCandidateError{Ext: ft.Ext}
			}
			return allFormats(cat), true, nil
		}
		sortByName(cat, matched)
		return matched, false, nil

	default:
		return nil, false, fmt.Errorf("unhandled file type %T", ft)
	}
}

func allFormats(cat *catalog.Catalog) []catalog.FormatID {
	ids := make([]catalog.FormatID, 0, len(cat.Formats))
	for fid := range cat.Formats {
		ids = append(ids, fid)
	}
	sortByName(cat, ids)
	return ids
}

func sortByName(cat *catalog.Catalog, ids []catalog.FormatID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := cat.Formats[ids[i]], cat.Formats[ids[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return ids[i] < ids[j]
	})
}

// Selection protocol state. The state is an explicit variant: each
// forward transition appends one component, back drops the last one.
type state interface {
	isState()
}

type stateNone struct{}

type stateFormat struct {
	format int // index into the candidate list
}

type stateConverter struct {
	format    int
	converter int // index into the sorted converter list
}

func (stateNone) isState()      {}
func (stateFormat) isState()    {}
func (stateConverter) isState() {}

// Select runs the three-step protocol over the candidate set. It
// returns (nil, nil) when the user exits. Given identical catalogs and
// identical answers the result is identical.
func Select(cat *catalog.Catalog, ft filetype.FileType, p Prompter) (*Selection, error) {
	candidates, fallback, err := Candidates(cat, ft, true)
	if err != nil {
		return nil, err
	}
	if fallback {
		slog.Info("no format matches the file extension, offering all formats")
	}

	_, formatForced := ft.(filetype.Tagged)

	ordered := make([]formatCandidate, len(candidates))
	for i, fid := range candidates {
		ordered[i] = formatCandidate{id: fid, entry: cat.Formats[fid]}
	}

	// With a forced format, and equally with a single candidate, the
	// format level needs no question up front. Back from the converter
	// prompt still reaches the one-entry format menu in the narrow case.
	var current state = stateNone{}
	if formatForced || len(ordered) == 1 {
		current = stateFormat{format: 0}
	}

	for {
		switch s := current.(type) {
		case stateNone:
			options := make([]Option, len(ordered))
			for i, c := range ordered {
				options[i] = Option{Name: c.entry.Name, Desc: c.entry.Desc}
			}
			answer, err := p.PickFormat(options)
			if err != nil {
				return nil, err
			}
			switch answer.Kind {
			case AnswerPicked:
				current = stateFormat{format: answer.Index}
			case AnswerExit:
				return nil, nil
			case AnswerBack:
				return nil, fmt.Errorf("cannot go back from the format prompt")
			}

		case stateFormat:
			format := ordered[s.format]
			converters := sortedConverters(format.entry)
			options := make([]Option, len(converters))
			for i, c := range converters {
				options[i] = Option{Name: c.entry.Name, Desc: c.entry.Desc}
			}
			answer, err := p.PickConverter(format.entry.Name, options, !formatForced)
			if err != nil {
				return nil, err
			}
			switch answer.Kind {
			case AnswerPicked:
				current = stateConverter{format: s.format, converter: answer.Index}
			case AnswerBack:
				current = stateNone{}
			case AnswerExit:
				return nil, nil
			}

		case stateConverter:
			format := ordered[s.format]
			converters := sortedConverters(format.entry)
			versions := converters[s.converter].entry.Versions

			// newest first for display
			labels := make([]string, len(versions))
			for i, v := range versions {
				labels[len(versions)-1-i] = v.Label
			}
			answer, err := p.PickVersion(labels)
			if err != nil {
				return nil, err
			}
			switch answer.Kind {
			case AnswerPicked:
				return &Selection{
					Format:    format.id,
					Converter: converters[s.converter].id,
					// map the displayed position back to storage order
					VersionIndex: len(versions) - 1 - answer.Index,
				}, nil
			case AnswerBack:
				current = stateFormat{format: s.format}
			case AnswerExit:
				return nil, nil
			}
		}
	}
}

type converterCandidate struct {
	id    catalog.ConverterID
	entry catalog.ConverterEntry
}

func sortedConverters(format catalog.FormatEntry) []converterCandidate {
	out := make([]converterCandidate, 0, len(format.Converters))
	for cid, entry := range format.Converters {
		out = append(out, converterCandidate{id: cid, entry: entry})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].entry.Name != out[j].entry.Name {
			return out[i].entry.Name < out[j].entry.Name
		}
		return out[i].id < out[j].id
	})
	return out
}

// Pin validates a caller-supplied triple against the catalog, for
// non-interactive callers that pin all three choices.
func Pin(cat *catalog.Catalog, fid catalog.FormatID, cid catalog.ConverterID, versionIdx int) (*Selection, error) {
	if _, err := cat.VersionAt(fid, cid, versionIdx); err != nil {
		return nil, err
	}
	return &Selection{Format: fid, Converter: cid, VersionIndex: versionIdx}, nil
}
