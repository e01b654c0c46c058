package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Patient returns the patients collection schema.
func Patient() *schema.Schema {
	return &schema.Schema{
		Name:    Patients,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"patientName":       {Kind: schema.String, MaxLength: 200},
			"patientGender":     {Kind: schema.String, Enum: []string{"male", "female", "other"}},
			"patientDob":        {Kind: schema.Object},
			"patientCnic":       {Kind: schema.String, MaxLength: 15},
			"patientBloodGroup": {Kind: schema.String, Enum: []string{"A+", "A-", "B+", "B-", "O+", "O-", "AB+", "AB-"}},
			"patientMobile":     {Kind: schema.String, MaxLength: 20},
			"patientAddress":    {Kind: schema.Object},
			"patientDisability": {Kind: schema.String},
			"emergencyContact":  {Kind: schema.Object},
			"medicalHistory":    {Kind: schema.Array},
		}),
		Required: append(baseRequired(), "patientName", "patientGender", "patientCnic"),
		Indexes:  []string{"patientName", "patientCnic", "updatedAt"},
	}
}
