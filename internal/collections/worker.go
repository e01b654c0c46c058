package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Worker returns the workers collection schema (hospital staff).
func Worker() *schema.Schema {
	return &schema.Schema{
		Name:    Workers,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"name":            {Kind: schema.String, MaxLength: 200},
			"gender":          {Kind: schema.String, Enum: []string{"male", "female", "other"}},
			"dateOfBirth":     {Kind: schema.String, MaxLength: 50},
			"cnic":            {Kind: schema.String, MaxLength: 15},
			"cnicIV":          {Kind: schema.String, MaxLength: 100},
			"designation":     {Kind: schema.String, MaxLength: 50},
			"department":      {Kind: schema.String},
			"experienceYears": {Kind: schema.Number},
			"qualifications":  {Kind: schema.Array},
			"shift":           {Kind: schema.Object},
			"contact":         {Kind: schema.Object},
			"hospitalIds":     {Kind: schema.ReferenceList, RefCollection: Hospitals},
			"licenseNumber":   {Kind: schema.String},
			"schemes":         {Kind: schema.Array},
		}),
		Required: append(baseRequired(), "name", "cnic", "cnicIV", "designation"),
		Indexes:  []string{"name", "cnic", "designation", "updatedAt"},
	}
}
