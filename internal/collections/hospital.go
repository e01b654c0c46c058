package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Hospital returns the hospitals collection schema.
func Hospital() *schema.Schema {
	return &schema.Schema{
		Name:    Hospitals,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"hospitalName":     {Kind: schema.String, MaxLength: 200},
			"hospitalAddress":  {Kind: schema.String},
			"hospitalLocation": {Kind: schema.Object},
			"type":             {Kind: schema.String, Enum: []string{"public", "private", "semi-government", "ngo"}},
			"hospitalServices": {Kind: schema.Array},
			"numberOfBeds":     {Kind: schema.String},
			"departments":      {Kind: schema.Object},
			"ntnNumber":        {Kind: schema.String, MaxLength: 50},
		}),
		Required: append(baseRequired(), "hospitalName", "type", "ntnNumber"),
		Indexes:  []string{"hospitalName", "type", "updatedAt"},
	}
}
