// Package session wires the whole flow together: classify the input,
// pin a converter, fetch and instantiate its module, round-trip the
// content through present and store, and persist the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/fkohlgrueber/format-galaxy/internal/catalog"
	"github.com/fkohlgrueber/format-galaxy/internal/container"
	"github.com/fkohlgrueber/format-galaxy/internal/filetype"
	"github.com/fkohlgrueber/format-galaxy/internal/selection"
	"github.com/fkohlgrueber/format-galaxy/internal/wasm"
)

// Editor is the external edit step: it opens path in whatever the user
// edits with and returns once they are done. ConfirmRetry asks whether
// to reopen the editor after the converter rejected the text.
type Editor interface {
	Edit(ctx context.Context, path string) error
	ConfirmRetry(ctx context.Context, message string) (bool, error)
}

// BlobResolver fetches the wasm module bytes for a converter hash.
type BlobResolver interface {
	Resolve(ctx context.Context, hash string) ([]byte, error)
}

// Session runs one end-to-end edit or cat flow. Sessions are
// single-threaded and never share plugin instances.
type Session struct {
	Catalog  *catalog.Catalog
	Prompter selection.Prompter
	Editor   Editor
	Resolver BlobResolver
	Runtime  *wasm.Runtime

	// Pinned bypasses the interactive protocol for callers that fix all
	// three choices up front.
	Pinned *selection.Selection

	id  string
	log *slog.Logger
}

// New creates a session with a fresh correlation id.
func New(cat *catalog.Catalog, p selection.Prompter, e Editor, r BlobResolver, rt *wasm.Runtime) *Session {
	id := uuid.NewString()
	return &Session{
		Catalog:  cat,
		Prompter: p,
		Editor:   e,
		Resolver: r,
		Runtime:  rt,
		id:       id,
		log:      slog.With("session", id),
	}
}

// loadPlugin resolves the selected converter version to a wasm blob and
// instantiates it.
func (s *Session) loadPlugin(ctx context.Context, sel *selection.Selection) (*wasm.Plugin, error) {
	version, err := s.Catalog.VersionAt(sel.Format, sel.Converter, sel.VersionIndex)
	if err != nil {
		return nil, err
	}
	s.log.Debug("resolving converter module",
		"format", uint64(sel.Format), "converter", uint64(sel.Converter),
		"version", version.Label, "hash", string(version.Hash))

	blob, err := s.Resolver.Resolve(ctx, string(version.Hash))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve converter module: %w", err)
	}
	return s.Runtime.Load(ctx, blob)
}

// classify reads the file if it exists and classifies it. The returned
// payload is the bytes handed to present: the unwrapped container
// payload for tagged files, the raw content otherwise. exists reports
// whether there was a file at all.
func (s *Session) classify(path string) (ft filetype.FileType, payload []byte, exists bool, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filetype.ClassifyPath(path), nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ft, err = filetype.Classify(path, content)
	if err != nil {
		return nil, nil, false, err
	}
	if tagged, ok := ft.(filetype.Tagged); ok {
		_, payload, err = container.Decode(content)
		if err != nil {
			return nil, nil, false, err
		}
		return tagged, payload, true, nil
	}
	return ft, content, true, nil
}

// selectConverter runs the selection protocol. A nil selection with nil
// error means the user exited.
func (s *Session) selectConverter(ft filetype.FileType) (*selection.Selection, error) {
	var sel *selection.Selection
	var err error
	if s.Pinned != nil {
		sel, err = selection.Pin(s.Catalog, s.Pinned.Format, s.Pinned.Converter, s.Pinned.VersionIndex)
	} else {
		sel, err = selection.Select(s.Catalog, ft, s.Prompter)
	}
	if err != nil {
		return nil, err
	}
	if sel == nil {
		s.log.Debug("selection cancelled")
		return nil, nil
	}
	if tagged, ok := ft.(filetype.Tagged); ok && tagged.Format != sel.Format {
		return nil, fmt.Errorf("selected format %s does not match the file's %s", sel.Format, tagged.Format)
	}
	return sel, nil
}

// Cat presents a file without editing it. The returned text is the
// converter's rendition of the payload.
func (s *Session) Cat(ctx context.Context, path string) (string, error) {
	ft, payload, exists, err := s.classify(path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("file not found: %s", path)
	}

	sel, err := s.selectConverter(ft)
	if err != nil || sel == nil {
		return "", err
	}

	plugin, err := s.loadPlugin(ctx, sel)
	if err != nil {
		return "", err
	}
	defer plugin.Close(ctx)

	return wasm.Present(ctx, plugin, payload)
}

// Edit runs the full present, edit, store, persist flow. The
// original file is untouched unless the flow completes. A cancelled
// selection is not an error.
func (s *Session) Edit(ctx context.Context, path string) error {
	ft, payload, exists, err := s.classify(path)
	if err != nil {
		return err
	}

	sel, err := s.selectConverter(ft)
	if err != nil || sel == nil {
		return err
	}

	plugin, err := s.loadPlugin(ctx, sel)
	if err != nil {
		return err
	}
	defer plugin.Close(ctx)

	tmpPath := path + ".tmp"
	if exists {
		text, err := wasm.Present(ctx, plugin, payload)
		if err != nil {
			// a guest-reported message aborts the edit before the editor
			// ever opens; everything else is already fatal
			return err
		}
		if err := os.WriteFile(tmpPath, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", tmpPath, err)
		}
	}

	encoded, done, err := s.editLoop(ctx, plugin, tmpPath)
	if err != nil || !done {
		return err
	}

	out := encoded
	if filetype.WrapOnSave(ft, path) {
		out = container.Encode(sel.Format, encoded)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove temp file", "path", tmpPath, "error", err)
	}
	s.log.Debug("session complete", "path", path, "bytes", len(out))
	return nil
}

// editLoop alternates the external editor with the converter's store
// until the text is accepted, the user gives up, or the plugin faults.
// done reports whether encoded bytes were produced.
func (s *Session) editLoop(ctx context.Context, plugin *wasm.Plugin, tmpPath string) (encoded []byte, done bool, err error) {
	for {
		if err := s.Editor.Edit(ctx, tmpPath); err != nil {
			return nil, false, fmt.Errorf("editor failed: %w", err)
		}

		text, err := os.ReadFile(tmpPath)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", tmpPath, err)
		}

		encoded, err := wasm.Store(ctx, plugin, string(text))
		if err == nil {
			return encoded, true, nil
		}

		var guestErr *wasm.GuestError
		if !errors.As(err, &guestErr) {
			return nil, false, err
		}

		retry, confirmErr := s.Editor.ConfirmRetry(ctx, guestErr.Message)
		if confirmErr != nil {
			return nil, false, confirmErr
		}
		if !retry {
			s.log.Debug("edit abandoned after converter rejection")
			return nil, false, nil
		}
	}
}
