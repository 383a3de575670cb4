package tool

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileSchema compiles a tool's input_schema so Dispatch can validate
// arguments before a handler ever runs, grounded on the teacher's
// pluginsdk.compileSchema (pkg/pluginsdk/validation.go).
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return jsonschema.CompileString(name+".input_schema.json", string(raw))
}
