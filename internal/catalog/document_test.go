package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
  "formats": {
    "42": {
      "name": "BSON",
      "desc": "Binary JSON",
      "extensions": ["bson"],
      "converters": {
        "1": {
          "name": "bson-pretty",
          "desc": "pretty printer",
          "versions": [
            ["0.1.0", "hash-a"],
            ["0.1.1", "hash-b"]
          ]
        }
      }
    },
    "7": {
      "name": "Bytes",
      "desc": "raw byte sequences",
      "extensions": [],
      "converters": {
        "1": {
          "name": "byte-sequence",
          "desc": "comma separated bytes",
          "versions": [["1.0.0", "hash-c"]]
        }
      }
    }
  }
}`

func TestDecodeDocument(t *testing.T) {
	t.Parallel()

	cat, err := DecodeDocument([]byte(sampleDocument))
	require.NoError(t, err)

	require.Len(t, cat.Formats, 2)

	f, err := cat.Format(42)
	require.NoError(t, err)
	assert.Equal(t, "BSON", f.Name)
	assert.Equal(t, []string{"bson"}, f.Extensions)

	conv, err := cat.Converter(42, 1)
	require.NoError(t, err)
	require.Len(t, conv.Versions, 2)
	assert.Equal(t, Version{Label: "0.1.0", Hash: "hash-a"}, conv.Versions[0])
	assert.Equal(t, Version{Label: "0.1.1", Hash: "hash-b"}, conv.Newest())
}

func TestDecodeDocumentYAML(t *testing.T) {
	t.Parallel()

	doc := `
formats:
  "42":
    name: BSON
    converters:
      "1":
        name: bson-pretty
        versions:
          - ["0.1.0", "hash-a"]
`
	cat, err := DecodeDocument([]byte(doc))
	require.NoError(t, err)

	conv, err := cat.Converter(42, 1)
	require.NoError(t, err)
	assert.Equal(t, ConverterHash("hash-a"), conv.Newest().Hash)
}

func TestDecodeDocumentErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
	}{
		{"not a document", `[1, 2, 3]`},
		{"missing formats", `{}`},
		{"non-numeric format id", `{"formats": {"abc": {"name": "x", "converters": {}}}}`},
		{"format without name", `{"formats": {"1": {"converters": {}}}}`},
		{"converter without versions", `{"formats": {"1": {"name": "x", "converters": {"1": {"name": "c"}}}}}`},
		{"empty versions", `{"formats": {"1": {"name": "x", "converters": {"1": {"name": "c", "versions": []}}}}}`},
		{"version tuple too short", `{"formats": {"1": {"name": "x", "converters": {"1": {"name": "c", "versions": [["0.1.0"]]}}}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeDocument([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o644))

	cat, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Len(t, cat.Formats, 2)

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
