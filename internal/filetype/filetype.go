// Package filetype classifies input files: container files carry their
// format id in the envelope, everything else is classified by the
// path's extension hint.
package filetype

import (
	"path/filepath"
	"strings"

	"github.com/fkohlgrueber/format-galaxy/internal/container"
)

// ContainerExt is the extension conventionally used for container files.
// It only matters for files that do not exist yet (nothing to sniff) and
// for the save-mode policy.
const ContainerExt = "fg"

// FileType is the classification outcome.
type FileType interface {
	isFileType()
}

// Tagged marks a file beginning with the container magic.
type Tagged struct {
	Format container.FormatID
}

// Untagged marks everything else, carrying at most an extension hint.
type Untagged struct {
	Ext    string
	HasExt bool
}

func (Tagged) isFileType()   {}
func (Untagged) isFileType() {}

// Classify inspects content and path. A file starting with the
// container magic must decode as a container; a truncated envelope is a
// MalformedContainer error, never reclassified as untagged.
func Classify(path string, content []byte) (FileType, error) {
	if container.HasMagic(content) {
		fid, _, err := container.Decode(content)
		if err != nil {
			return nil, err
		}
		return Tagged{Format: fid}, nil
	}
	ext, ok := Ext(path)
	return Untagged{Ext: ext, HasExt: ok}, nil
}

// ClassifyPath classifies a file that does not exist yet, by its
// intended path alone.
func ClassifyPath(path string) FileType {
	if IsContainerPath(path) {
		// A container file will be created; every format is a candidate.
		return Untagged{}
	}
	ext, ok := Ext(path)
	return Untagged{Ext: ext, HasExt: ok}
}

// Ext returns the path's last dot-separated component, lowercased.
func Ext(path string) (string, bool) {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 || idx == len(base)-1 {
		return "", false
	}
	return strings.ToLower(base[idx+1:]), true
}

// IsContainerPath reports whether a path names a container file by
// extension.
func IsContainerPath(path string) bool {
	ext, ok := Ext(path)
	return ok && ext == ContainerExt
}

// WrapOnSave decides the save-mode policy: container files never lose
// their format tag, foreign files never gain one.
func WrapOnSave(ft FileType, path string) bool {
	if _, ok := ft.(Tagged); ok {
		return true
	}
	return IsContainerPath(path)
}
