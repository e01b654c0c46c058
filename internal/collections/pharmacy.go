package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Pharmacy returns the pharmacies collection schema.
func Pharmacy() *schema.Schema {
	return &schema.Schema{
		Name:    Pharmacies,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"name":      {Kind: schema.String, MaxLength: 200},
			"contact":   {Kind: schema.String},
			"location":  {Kind: schema.Object},
			"inventory": {Kind: schema.Array},
		}),
		Required: append(baseRequired(), "name", "contact", "location"),
		Indexes:  []string{"name", "updatedAt"},
	}
}
