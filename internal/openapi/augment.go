package openapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fastgeoapi/internal/geoapi"
	"fastgeoapi/pkg/logging"
)

// securedMethods receive a security requirement and a 401 response.
var securedMethods = []string{"get", "post", "options", "delete"}

// Augment adds schemes to components.securitySchemes and requires them on
// every operation outside the openapi paths. Multiple schemes are
// alternatives. doc is modified in place.
func Augment(doc map[string]any, schemes []NamedScheme) {
	if len(schemes) == 0 {
		return
	}

	components, _ := doc["components"].(map[string]any)
	if components == nil {
		components = map[string]any{}
		doc["components"] = components
	}
	securitySchemes, _ := components["securitySchemes"].(map[string]any)
	if securitySchemes == nil {
		securitySchemes = map[string]any{}
		components["securitySchemes"] = securitySchemes
	}

	requirements := make([]any, 0, len(schemes))
	for _, s := range schemes {
		securitySchemes[s.Name] = map[string]any(s.Scheme)
		requirements = append(requirements, map[string]any{s.Name: []any{}})
	}

	paths, _ := doc["paths"].(map[string]any)
	for path, item := range paths {
		if strings.Contains(path, "openapi") {
			continue
		}
		ops, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, method := range securedMethods {
			op, ok := ops[method].(map[string]any)
			if !ok {
				continue
			}
			op["security"] = requirements
			responses, _ := op["responses"].(map[string]any)
			if responses == nil {
				responses = map[string]any{}
				op["responses"] = responses
			}
			responses["401"] = map[string]any{"description": "Unauthorized response"}
		}
	}
}

// AugmentJSON is Augment over a serialized document.
func AugmentJSON(data []byte, schemes []NamedScheme) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	Augment(doc, schemes)
	return json.Marshal(doc)
}

// ResponseModifier augments the upstream's JSON OpenAPI document. upstreamPath
// is the document's path after the API context is stripped.
func ResponseModifier(upstreamPath string, schemes []NamedScheme) geoapi.ResponseModifier {
	return func(resp *http.Response) error {
		if len(schemes) == 0 || resp.Request == nil || resp.Request.URL.Path != upstreamPath {
			return nil
		}
		if resp.StatusCode != http.StatusOK || !isJSON(resp.Header.Get("Content-Type")) {
			return nil
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read OpenAPI document: %w", err)
		}

		augmented, err := AugmentJSON(data, schemes)
		if err != nil {
			logging.Error("openapi", err, "serving OpenAPI document without security schemes")
			geoapi.SetBody(resp, data)
			return nil
		}
		geoapi.SetBody(resp, augmented)
		return nil
	}
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json")
}
