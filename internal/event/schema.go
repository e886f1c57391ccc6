package event

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed event.schema.json
var eventSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		if err := c.AddResource("event.schema.json", strings.NewReader(eventSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("event.schema.json")
	})
	return schema, schemaErr
}

// ValidateDocument checks a single JSON-encoded raw event against the
// producer-side event schema. It is stricter than Normalize: producers must
// send well-typed tags, a known severity and an RFC 3339 timestamp.
func ValidateDocument(doc []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile event schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}
	return nil
}

// ValidateRaw validates a raw event by encoding it and checking the result
// against the producer schema.
func ValidateRaw(raw Raw) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return ValidateDocument(doc)
}
