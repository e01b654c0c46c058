package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// WardCapacity returns the capacity collection schema (ward bed tracking).
func WardCapacity() *schema.Schema {
	return &schema.Schema{
		Name:    Capacity,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"hospitalId":    {Kind: schema.Reference, RefCollection: Hospitals},
			"wardType":      {Kind: schema.String, MaxLength: 50},
			"totalBeds":     {Kind: schema.Number},
			"occupiedBeds":  {Kind: schema.Number},
			"availableBeds": {Kind: schema.Number},
			"equipmentIds":  {Kind: schema.ReferenceList, RefCollection: Facilities},
			"notes":         {Kind: schema.String},
		}),
		Required: append(baseRequired(), "hospitalId", "wardType", "totalBeds", "occupiedBeds"),
		Indexes:  []string{"wardType", "updatedAt"},
	}
}
