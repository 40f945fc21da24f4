package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fastgeoapi/internal/openapi"
)

const maxToolNameLength = 64

var invalidToolNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// operation is one GET operation of the API document exposed as a tool.
type operation struct {
	name        string
	path        string
	description string
	params      []parameter
}

type parameter struct {
	name        string
	in          string
	required    bool
	description string
	schema      map[string]any
	explode     bool
}

// BuildTools derives one tool per GET operation in doc. Tools call the API
// through client.
func BuildTools(doc openapi.Document, client *APIClient) []server.ServerTool {
	ops := operations(doc)
	tools := make([]server.ServerTool, 0, len(ops))
	for _, op := range ops {
		tools = append(tools, server.ServerTool{
			Tool:    op.tool(),
			Handler: op.handler(client),
		})
	}
	return tools
}

func operations(doc openapi.Document) []operation {
	paths, _ := doc["paths"].(map[string]any)
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	used := map[string]int{}
	var ops []operation
	for _, path := range keys {
		item, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}
		get, ok := item["get"].(map[string]any)
		if !ok {
			continue
		}

		id, _ := get["operationId"].(string)
		name := toolName(id, path)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}

		ops = append(ops, operation{
			name:        name,
			path:        path,
			description: describe(get, path),
			params:      collectParams(doc, item["parameters"], get["parameters"]),
		})
	}
	return ops
}

func toolName(operationID, path string) string {
	raw := operationID
	if raw == "" {
		raw = "get" + path
	}
	name := strings.Trim(invalidToolNameChars.ReplaceAllString(raw, "_"), "_")
	if name == "get" || name == "" {
		name = "get_root"
	}
	if len(name) > maxToolNameLength {
		name = name[:maxToolNameLength]
	}
	return name
}

func describe(op map[string]any, path string) string {
	summary, _ := op["summary"].(string)
	description, _ := op["description"].(string)
	switch {
	case summary != "" && description != "" && summary != description:
		return summary + "\n\n" + description
	case summary != "":
		return summary
	case description != "":
		return description
	default:
		return "GET " + path
	}
}

// collectParams merges path-level and operation-level parameters. The
// operation's definition wins for the same name and location. Header and
// cookie parameters are not exposed.
func collectParams(doc openapi.Document, pathLevel, opLevel any) []parameter {
	var out []parameter
	index := map[string]int{}
	for _, list := range []any{pathLevel, opLevel} {
		items, _ := list.([]any)
		for _, raw := range items {
			p, ok := parseParam(doc, raw)
			if !ok {
				continue
			}
			key := p.in + ":" + p.name
			if i, seen := index[key]; seen {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func parseParam(doc openapi.Document, raw any) (parameter, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return parameter{}, false
	}
	if ref, ok := m["$ref"].(string); ok {
		if m = resolveRef(doc, ref); m == nil {
			return parameter{}, false
		}
	}

	name, _ := m["name"].(string)
	in, _ := m["in"].(string)
	if name == "" || (in != "path" && in != "query") {
		return parameter{}, false
	}
	p := parameter{name: name, in: in, explode: true}
	p.required, _ = m["required"].(bool)
	if in == "path" {
		p.required = true
	}
	p.description, _ = m["description"].(string)
	p.schema, _ = m["schema"].(map[string]any)
	if p.schema != nil {
		if ref, ok := p.schema["$ref"].(string); ok {
			p.schema = resolveRef(doc, ref)
		}
	}
	if explode, ok := m["explode"].(bool); ok {
		p.explode = explode
	}
	return p, true
}

// resolveRef follows a local JSON pointer. Remote references resolve to nil.
func resolveRef(doc openapi.Document, ref string) map[string]any {
	if !strings.HasPrefix(ref, "#/") {
		return nil
	}
	var node any = map[string]any(doc)
	for _, part := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[part]
	}
	m, _ := node.(map[string]any)
	return m
}

func (o operation) tool() mcp.Tool {
	props := map[string]interface{}{}
	var required []string
	for _, p := range o.params {
		props[p.name] = p.property()
		if p.required {
			required = append(required, p.name)
		}
	}
	return mcp.Tool{
		Name:        o.name,
		Description: o.description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func (p parameter) property() map[string]interface{} {
	prop := map[string]interface{}{"type": jsonType(p.schema)}
	if prop["type"] == "array" {
		items, _ := p.schema["items"].(map[string]any)
		prop["items"] = map[string]interface{}{"type": jsonType(items)}
	}
	if enum, ok := p.schema["enum"].([]any); ok && len(enum) > 0 {
		prop["enum"] = enum
	}
	if p.description != "" {
		prop["description"] = p.description
	}
	return prop
}

func jsonType(schema map[string]any) string {
	switch t, _ := schema["type"].(string); t {
	case "integer", "number", "boolean", "array":
		return t
	default:
		return "string"
	}
}

func (o operation) hasQueryParam(name string) bool {
	for _, p := range o.params {
		if p.in == "query" && p.name == name {
			return true
		}
	}
	return false
}

func (o operation) handler(client *APIClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		path, err := o.expandPath(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		query := url.Values{}
		for _, p := range o.params {
			if p.in != "query" {
				continue
			}
			v, ok := args[p.name]
			if !ok || v == nil {
				if p.required {
					return mcp.NewToolResultError(fmt.Sprintf("%s argument is required", p.name)), nil
				}
				continue
			}
			values := formatValues(v)
			if !p.explode && len(values) > 1 {
				values = []string{strings.Join(values, ",")}
			}
			query[p.name] = values
		}
		// pygeoapi answers browsers with HTML unless told otherwise.
		if o.hasQueryParam("f") && query.Get("f") == "" {
			query.Set("f", "json")
		}

		resp, err := client.Get(ctx, path, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
		}
		if resp.StatusCode >= 400 {
			return mcp.NewToolResultError(fmt.Sprintf("GET %s returned %d: %s", path, resp.StatusCode, resp.Body)), nil
		}

		text := string(resp.Body)
		if resp.Truncated {
			text += "\n[response truncated]"
		}
		return mcp.NewToolResultText(text), nil
	}
}

func (o operation) expandPath(args map[string]any) (string, error) {
	path := o.path
	for _, p := range o.params {
		if p.in != "path" {
			continue
		}
		v, ok := args[p.name]
		if !ok || v == nil {
			return "", fmt.Errorf("%s argument is required", p.name)
		}
		values := formatValues(v)
		path = strings.ReplaceAll(path, "{"+p.name+"}", url.PathEscape(strings.Join(values, ",")))
	}
	if strings.Contains(path, "{") {
		return "", fmt.Errorf("unresolved path parameters in %s", path)
	}
	return path, nil
}

func formatValues(v any) []string {
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, formatScalar(item))
		}
		return out
	}
	return []string{formatScalar(v)}
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
