package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// MedicalRecord returns the medical-records collection schema.
func MedicalRecord() *schema.Schema {
	return &schema.Schema{
		Name:    MedicalRecords,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"patientId":     {Kind: schema.Reference, RefCollection: Patients},
			"doctorId":      {Kind: schema.Reference, RefCollection: Doctors},
			"hospitalId":    {Kind: schema.Reference, RefCollection: Hospitals},
			"appointmentId": {Kind: schema.Reference, RefCollection: Appointments},
			"visitDate":     {Kind: schema.String, MaxLength: 50},
			"diagnosis":     {Kind: schema.String},
			"prescriptions": {Kind: schema.Array},
			"labResults":    {Kind: schema.Array},
			"notes":         {Kind: schema.String},
		}),
		Required: append(baseRequired(), "patientId", "visitDate"),
		Indexes:  []string{"visitDate", "updatedAt"},
	}
}
