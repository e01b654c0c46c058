package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Facility returns the facilities collection schema (hospital equipment).
func Facility() *schema.Schema {
	return &schema.Schema{
		Name:    Facilities,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"hospitalId": {Kind: schema.Reference, RefCollection: Hospitals},
			"category":   {Kind: schema.String, MaxLength: 50},
			"name":       {Kind: schema.String, MaxLength: 200},
			"quantity":   {Kind: schema.Number},
			"inUse":      {Kind: schema.Number},
			"status":     {Kind: schema.String, MaxLength: 50},
		}),
		Required: append(baseRequired(), "hospitalId", "category", "name", "quantity", "status"),
		Indexes:  []string{"name", "category", "status", "updatedAt"},
	}
}
