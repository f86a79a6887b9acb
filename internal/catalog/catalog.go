// Package catalog holds the in-memory catalog of formats, converters and
// converter versions, plus decoding of the textual catalog document.
package catalog

import (
	"fmt"

	"github.com/fkohlgrueber/format-galaxy/internal/container"
)

// FormatID identifies a format. Alias of the container codec's id so the
// two packages agree on the tag written into container files.
type FormatID = container.FormatID

// ConverterID identifies a converter within a format.
type ConverterID uint64

// ConverterHash is the content hash of a converter's wasm module bytes.
// It doubles as the module's storage and cache key.
type ConverterHash string

// Version pairs a human-readable label with the hash of the wasm module
// implementing it. Versions are ordered newest last; lookups address them
// by index in that stored order.
type Version struct {
	Label string
	Hash  ConverterHash
}

// ConverterEntry describes one converter of a format.
type ConverterEntry struct {
	Name     string
	Desc     string
	Versions []Version
}

// Newest returns the last (most recent) version.
func (c ConverterEntry) Newest() Version {
	return c.Versions[len(c.Versions)-1]
}

// FormatEntry describes one format and the converters that understand it.
type FormatEntry struct {
	Name       string
	Desc       string
	Extensions []string
	Converters map[ConverterID]ConverterEntry
}

// Catalog maps format ids to their entries. It is a pure tree; entries
// never reference each other or the catalog.
type Catalog struct {
	Formats map[FormatID]FormatEntry
}

// UnknownFormatError indicates a format id missing from the catalog.
type UnknownFormatError struct {
	ID FormatID
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown format: %s", e.ID)
}

// UnknownConverterError indicates a converter id missing from a format.
type UnknownConverterError struct {
	Format    FormatID
	Converter ConverterID
}

func (e *UnknownConverterError) Error() string {
	return fmt.Sprintf("unknown converter %d in %s", uint64(e.Converter), e.Format)
}

// VersionIndexError indicates a version index outside the stored sequence.
type VersionIndexError struct {
	Format    FormatID
	Converter ConverterID
	Index     int
	Count     int
}

func (e *VersionIndexError) Error() string {
	return fmt.Sprintf("version index %d out of range for converter %d in %s (%d versions)",
		e.Index, uint64(e.Converter), e.Format, e.Count)
}

// Format looks up a format entry by id.
func (c *Catalog) Format(fid FormatID) (FormatEntry, error) {
	f, ok := c.Formats[fid]
	if !ok {
		return FormatEntry{}, &UnknownFormatError{ID: fid}
	}
	return f, nil
}

// Converter looks up a converter entry by format and converter id.
func (c *Catalog) Converter(fid FormatID, cid ConverterID) (ConverterEntry, error) {
	f, err := c.Format(fid)
	if err != nil {
		return ConverterEntry{}, err
	}
	conv, ok := f.Converters[cid]
	if !ok {
		return ConverterEntry{}, &UnknownConverterError{Format: fid, Converter: cid}
	}
	return conv, nil
}

// VersionAt looks up a version by its index in the stored sequence.
func (c *Catalog) VersionAt(fid FormatID, cid ConverterID, idx int) (Version, error) {
	conv, err := c.Converter(fid, cid)
	if err != nil {
		return Version{}, err
	}
	if idx < 0 || idx >= len(conv.Versions) {
		return Version{}, &VersionIndexError{
			Format:    fid,
			Converter: cid,
			Index:     idx,
			Count:     len(conv.Versions),
		}
	}
	return conv.Versions[idx], nil
}

// Validate checks catalog invariants: every converter carries at least
// one version.
func (c *Catalog) Validate() error {
	for fid, f := range c.Formats {
		for cid, conv := range f.Converters {
			if len(conv.Versions) == 0 {
				return fmt.Errorf("converter %d in %s: at least one version is required",
					uint64(cid), fid)
			}
		}
	}
	return nil
}
