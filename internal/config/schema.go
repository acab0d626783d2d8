// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
)

// SchemaID is the $id of the generated schema.
const SchemaID = "https://holomush.dev/schemas/qmm.schema.json"

// GenerateSchema generates a JSON Schema for qmm.yaml from Config.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "qmm configuration"
	schema.Description = "Schema for qmm.yaml host configuration files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "failed to marshal schema")
	}
	return data, nil
}
