package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Doctor returns the doctors collection schema.
func Doctor() *schema.Schema {
	return &schema.Schema{
		Name:    Doctors,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"name":           {Kind: schema.String, MaxLength: 200},
			"gender":         {Kind: schema.String, Enum: []string{"male", "female", "other"}},
			"cnic":           {Kind: schema.String, MaxLength: 15},
			"cnicIV":         {Kind: schema.String, MaxLength: 100},
			"specialization": {Kind: schema.String, MaxLength: 100},
			"experience":     {Kind: schema.String},
			"education":      {Kind: schema.String},
			"lisenceNumber":  {Kind: schema.String, MaxLength: 100},
			"appointment":    {Kind: schema.Object},
			"hospitalIds":    {Kind: schema.ReferenceList, RefCollection: Hospitals},
			"availability":   {Kind: schema.Object},
		}),
		Required: append(baseRequired(), "name", "cnic", "cnicIV", "lisenceNumber"),
		Indexes:  []string{"name", "cnic", "specialization", "updatedAt"},
	}
}
