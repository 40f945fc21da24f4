package openapi

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Document is a parsed OpenAPI document kept as generic JSON values.
type Document map[string]any

// LoadDocument reads an OpenAPI document in YAML or JSON.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI document %s: %w", path, err)
	}
	return ParseDocument(data)
}

// ParseDocument converts YAML (a superset of JSON) into a Document.
func ParseDocument(data []byte) (Document, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert OpenAPI document to JSON: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("OpenAPI document is empty")
	}
	if _, ok := doc["paths"].(map[string]any); !ok {
		return nil, fmt.Errorf("OpenAPI document has no paths")
	}
	return doc, nil
}

// Title returns info.title, if any.
func (d Document) Title() string {
	info, _ := d["info"].(map[string]any)
	title, _ := info["title"].(string)
	return title
}

// Version returns info.version, if any.
func (d Document) Version() string {
	info, _ := d["info"].(map[string]any)
	version, _ := info["version"].(string)
	return version
}
