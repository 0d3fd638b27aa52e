// Package schemas embeds the JSON Schemas of the YAML documents evallabel
// reads.
package schemas

import _ "embed"

// UsersSchemaJSON describes the user auth config blob.
//
//go:embed users.schema.json
var UsersSchemaJSON string

// ProjectSchemaJSON describes .evallabel.yaml.
//
//go:embed project.schema.json
var ProjectSchemaJSON string
