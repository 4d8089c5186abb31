package render_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/distribution"
	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
	"github.com/Sumatoshi-tech/pipetrack/pkg/render"
)

type schemaNode struct {
	Properties  map[string]json.RawMessage `json:"properties"`
	Required    []string                   `json:"required"`
	Definitions map[string]schemaNode      `json:"definitions"`
}

// jsonFields returns the JSON field names t encodes, with untagged embedded
// structs flattened the way encoding/json does.
func jsonFields(t reflect.Type) map[string]bool {
	fields := make(map[string]bool)

	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("json")

		if tag == "-" || !field.IsExported() {
			continue
		}

		if field.Anonymous && tag == "" && field.Type.Kind() == reflect.Struct {
			for name := range jsonFields(field.Type) {
				fields[name] = true
			}

			continue
		}

		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		fields[name] = true
	}

	return fields
}

func TestSchema_NamesOnlyEncodedFields(t *testing.T) {
	t.Parallel()

	var root schemaNode
	require.NoError(t, json.Unmarshal(render.Schema(), &root))

	cases := []struct {
		name string
		node schemaNode
		typ  reflect.Type
	}{
		{name: "report", node: root, typ: reflect.TypeFor[render.Report]()},
		{name: "pipeline", node: root.Definitions["pipeline"], typ: reflect.TypeFor[pipeline.Stats]()},
		{name: "status", node: root.Definitions["status"], typ: reflect.TypeFor[pipeline.Status]()},
		{name: "distribution", node: root.Definitions["distribution"], typ: reflect.TypeFor[distribution.Snapshot]()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fields := jsonFields(tc.typ)
			require.NotEmpty(t, tc.node.Properties)

			for prop := range tc.node.Properties {
				assert.True(t, fields[prop], "schema property %q is not written by %s", prop, tc.typ)
			}

			for _, req := range tc.node.Required {
				assert.True(t, fields[req], "required property %q is not written by %s", req, tc.typ)
			}
		})
	}
}
