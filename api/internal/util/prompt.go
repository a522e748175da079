package util

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompt returns $PROMPT_DIR/<name>.txt when present and non-empty, else def.
func LoadPrompt(name, def string) string {
	dir := strings.TrimSpace(os.Getenv("PROMPT_DIR"))
	if dir == "" {
		return def
	}
	b, err := os.ReadFile(filepath.Join(dir, name+".txt"))
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		return def
	}
	return strings.TrimSpace(string(b))
}

// FixJSONSchemaStrict makes a schema acceptable for OpenAI strict mode: every
// object gets type=object, all properties required and no additional properties.
func FixJSONSchemaStrict(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			if _, hasType := n["type"]; !hasType {
				n["type"] = "object"
			}
			req := make([]any, 0, len(props))
			for k := range props {
				req = append(req, k)
			}
			n["required"] = req
			n["additionalProperties"] = false
			for _, v := range props {
				FixJSONSchemaStrict(v)
			}
		}
		if items, ok := n["items"]; ok {
			switch it := items.(type) {
			case map[string]any:
				FixJSONSchemaStrict(it)
			case []any:
				for _, el := range it {
					FixJSONSchemaStrict(el)
				}
			}
		}
	case []any:
		for _, v := range n {
			FixJSONSchemaStrict(v)
		}
	}
}
