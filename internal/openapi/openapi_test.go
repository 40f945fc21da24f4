package openapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastgeoapi/internal/config"
	"fastgeoapi/internal/geoapi"
)

const sampleYAML = `openapi: 3.0.2
info:
  title: pygeoapi default instance
  version: 0.20.0
components:
  parameters:
    f:
      name: f
      in: query
paths:
  /:
    get:
      operationId: getLandingPage
      responses:
        "200":
          description: landing page
  /openapi:
    get:
      operationId: getOpenapi
      responses:
        "200":
          description: document
  /collections/obs/items:
    get:
      operationId: getObsFeatures
      responses:
        "200":
          description: items
    options:
      operationId: optionsObsFeatures
      responses:
        "200":
          description: options
`

func testCfg(mutate func(c *config.Config)) *config.Config {
	cfg := config.GetDefaultConfig()
	mutate(&cfg)
	return &cfg
}

func TestSecuritySchemes(t *testing.T) {
	apiKey := SecuritySchemes(config.SchemeAPIKey, testCfg(func(c *config.Config) {}))
	require.Len(t, apiKey, 1)
	assert.Equal(t, "pygeoapi default", apiKey[0].Name)
	assert.Equal(t, "apiKey", apiKey[0].Scheme["type"])
	assert.Equal(t, "X-API-KEY", apiKey[0].Scheme["name"])

	jwks := SecuritySchemes(config.SchemeJWKS, testCfg(func(c *config.Config) {
		c.GeoAPI.SecurityScheme = "oauth"
		c.Auth.TokenEndpoint = "https://idp.example.com/token"
	}))
	require.Len(t, jwks, 2)
	assert.Equal(t, "pygeoapi oauth", jwks[0].Name)
	assert.Equal(t, "oauth2", jwks[0].Scheme["type"])
	assert.Equal(t, "pygeoapi oauth bearer", jwks[1].Name)
	assert.Equal(t, "bearer", jwks[1].Scheme["scheme"])

	bearerOnly := SecuritySchemes(config.SchemeJWKS, testCfg(func(c *config.Config) {}))
	require.Len(t, bearerOnly, 1)
	assert.Equal(t, "pygeoapi default", bearerOnly[0].Name)

	opa := SecuritySchemes(config.SchemeOPA, testCfg(func(c *config.Config) {
		c.Auth.OIDCWellKnownEndpoint = "https://idp.example.com/.well-known/openid-configuration"
	}))
	require.Len(t, opa, 1)
	assert.Equal(t, "openIdConnect", opa[0].Scheme["type"])

	assert.Empty(t, SecuritySchemes(config.SchemeNone, testCfg(func(c *config.Config) {})))
}

func TestAugment(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)

	schemes := SecuritySchemes(config.SchemeAPIKey, testCfg(func(c *config.Config) {}))
	Augment(doc, schemes)

	components := doc["components"].(map[string]any)
	assert.Contains(t, components, "parameters")
	assert.Contains(t, components["securitySchemes"], "pygeoapi default")

	paths := doc["paths"].(map[string]any)
	items := paths["/collections/obs/items"].(map[string]any)
	for _, method := range []string{"get", "options"} {
		op := items[method].(map[string]any)
		assert.Equal(t, []any{map[string]any{"pygeoapi default": []any{}}}, op["security"])
		assert.Contains(t, op["responses"], "401")
		assert.Contains(t, op["responses"], "200")
	}

	openapiOp := paths["/openapi"].(map[string]any)["get"].(map[string]any)
	assert.NotContains(t, openapiOp, "security")
}

func TestAugment_NoSchemes(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)
	Augment(doc, nil)
	assert.NotContains(t, doc["components"], "securitySchemes")
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "pygeoapi default instance", doc.Title())
	assert.Equal(t, "0.20.0", doc.Version())

	_, err = ParseDocument([]byte("info: {}\n"))
	assert.ErrorContains(t, err, "no paths")

	_, err = ParseDocument([]byte(":\n\t- ["))
	assert.Error(t, err)
}

func TestResponseModifierThroughProxy(t *testing.T) {
	docJSON, err := json.Marshal(mustParse(t, sampleYAML))
	require.NoError(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") == "html" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>swagger</html>")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.oai.openapi+json;version=3.0")
		_, _ = w.Write(docJSON)
	}))
	defer upstream.Close()

	schemes := SecuritySchemes(config.SchemeAPIKey, testCfg(func(c *config.Config) {}))
	p, err := geoapi.NewProxy(config.GeoAPIConfig{Upstream: upstream.URL, Context: "/geoapi"},
		geoapi.WithResponseModifier(ResponseModifier("/openapi", schemes)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geoapi/openapi?f=json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Contains(t, got["components"].(map[string]any)["securitySchemes"], "pygeoapi default")

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geoapi/openapi?f=html", nil))
	assert.Equal(t, "<html>swagger</html>", rec.Body.String())

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geoapi/collections", nil))
	assert.NotContains(t, rec.Body.String(), "securitySchemes")
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pygeoapi-openapi.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	reloaded := make(chan Document, 4)
	w := NewWatcher(path, 20*time.Millisecond, func(d Document) { reloaded <- d })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(sampleYAML, "pygeoapi default instance", "renamed", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case doc := <-reloaded:
		assert.Equal(t, "renamed", doc.Title())
	case <-time.After(3 * time.Second):
		t.Fatal("document was not reloaded")
	}

	cancel()
	assert.NoError(t, <-done)
}

func mustParse(t *testing.T, s string) Document {
	t.Helper()
	doc, err := ParseDocument([]byte(s))
	require.NoError(t, err)
	return doc
}
