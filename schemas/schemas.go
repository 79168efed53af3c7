// Package schemas embeds the JSON schemas shipped with the binaries.
package schemas

import _ "embed"

//go:embed layout.schema.json
var LayoutSchema []byte

const LayoutSchemaURL = "https://trainsim.ai/schemas/layout.schema.json"
