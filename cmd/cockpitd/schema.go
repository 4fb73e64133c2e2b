package main

import (
	_ "embed"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed change_schema.json
var changeSchemaJSON string

// changeSchema validates /api/change bodies before anything touches
// the pipeline.
var changeSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("change.json", strings.NewReader(changeSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile("change.json")
}
