package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/planwise/plancheck/internal/schemas"
	"github.com/planwise/plancheck/internal/types"
)

//go:embed checks_catalog.json
var defaultCatalogJSON []byte

//go:embed catalog_schema.json
var catalogSchemaJSON string

// catalogFile mirrors the on-disk catalog layout.
type catalogFile struct {
	Version       string                            `json:"version"`
	PageTypes     map[string]types.PageTypeInfo     `json:"page_types"`
	Checks        []types.CheckDefinition           `json:"checks"`
	DocumentTypes map[string]types.DocumentTypeInfo `json:"document_types"`
}

// LoadDefault parses the embedded default catalog.
func LoadDefault() (*Catalog, error) {
	return Parse(defaultCatalogJSON)
}

// LoadFile parses a catalog from a config file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return cat, nil
}

// Parse validates raw catalog JSON against the catalog schema and builds the
// indexed Catalog. Check ids must be unique across the page-level check list.
func Parse(data []byte) (*Catalog, error) {
	if err := schemas.ValidateJSONString(catalogSchemaJSON, string(data)); err != nil {
		return nil, fmt.Errorf("catalog schema validation: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	seen := make(map[string]bool, len(file.Checks))
	for _, check := range file.Checks {
		if seen[check.ID] {
			return nil, fmt.Errorf("duplicate check id %q in catalog", check.ID)
		}
		seen[check.ID] = true
	}

	byPageType := make(map[string][]types.CheckDefinition)
	for _, check := range file.Checks {
		for _, pt := range check.PageTypes {
			byPageType[pt] = append(byPageType[pt], check)
		}
	}

	pageTypeOrder, err := topLevelObjectKeys(data, "page_types")
	if err != nil {
		return nil, fmt.Errorf("failed to read page type order: %w", err)
	}
	documentTypeOrder, err := topLevelObjectKeys(data, "document_types")
	if err != nil {
		return nil, fmt.Errorf("failed to read document type order: %w", err)
	}

	return &Catalog{
		version:           file.Version,
		pageTypes:         file.PageTypes,
		pageTypeOrder:     pageTypeOrder,
		documentTypes:     file.DocumentTypes,
		documentTypeOrder: documentTypeOrder,
		checks:            file.Checks,
		byPageType:        byPageType,
	}, nil
}

// topLevelObjectKeys returns the keys of the named top-level object in the
// order the JSON document declares them. Go maps do not preserve declaration
// order, and batch planning depends on it being reproducible.
func topLevelObjectKeys(data []byte, field string) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	raw, ok := top[field]
	if !ok {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%s is not a JSON object", field)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in %s", tok, field)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// skipValue consumes one complete JSON value from the decoder.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil // scalar
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err == io.EOF {
			return fmt.Errorf("unexpected end of JSON value")
		}
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
