package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var documentSchema []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog-schema.json", bytes.NewReader(documentSchema)); err != nil {
		panic(fmt.Sprintf("invalid embedded catalog schema: %v", err))
	}
	return compiler.MustCompile("catalog-schema.json")
}

// Document-layer types mirroring the wire encoding. Ids are decimal
// string keys and versions are [label, hash] pairs.
type formatDoc struct {
	Name       string                  `json:"name"`
	Desc       string                  `json:"desc"`
	Extensions []string                `json:"extensions"`
	Converters map[string]converterDoc `json:"converters"`
}

type converterDoc struct {
	Name     string      `json:"name"`
	Desc     string      `json:"desc"`
	Versions [][2]string `json:"versions"`
}

type catalogDoc struct {
	Formats map[string]formatDoc `json:"formats"`
}

// DecodeDocument parses a catalog document. The document is JSON-like
// text; YAML input is accepted as well since JSON is a subset.
func DecodeDocument(data []byte) (*Catalog, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog document: %w", err)
	}

	var raw interface{}
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog document: %w", err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("catalog document failed schema validation: %w", err)
	}

	var doc catalogDoc
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog document: %w", err)
	}

	cat := &Catalog{Formats: make(map[FormatID]FormatEntry, len(doc.Formats))}
	for fidStr, f := range doc.Formats {
		fid, err := strconv.ParseUint(fidStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid format id %q: %w", fidStr, err)
		}

		converters := make(map[ConverterID]ConverterEntry, len(f.Converters))
		for cidStr, conv := range f.Converters {
			cid, err := strconv.ParseUint(cidStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid converter id %q in format %s: %w", cidStr, fidStr, err)
			}

			versions := make([]Version, 0, len(conv.Versions))
			for _, v := range conv.Versions {
				if _, err := semver.NewVersion(v[0]); err != nil {
					// Labels are opaque and positional; this is a hint
					// for catalog authors, nothing more.
					slog.Debug("version label is not valid semver",
						"format", fidStr, "converter", cidStr, "label", v[0])
				}
				versions = append(versions, Version{Label: v[0], Hash: ConverterHash(v[1])})
			}
			converters[ConverterID(cid)] = ConverterEntry{
				Name:     conv.Name,
				Desc:     conv.Desc,
				Versions: versions,
			}
		}

		cat.Formats[FormatID(fid)] = FormatEntry{
			Name:       f.Name,
			Desc:       f.Desc,
			Extensions: f.Extensions,
			Converters: converters,
		}
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// LoadDocument reads and decodes a catalog document from disk.
func LoadDocument(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	cat, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}
