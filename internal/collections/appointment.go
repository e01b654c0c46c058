package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Appointment returns the appointments collection schema.
func Appointment() *schema.Schema {
	return &schema.Schema{
		Name:    Appointments,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"patientId":       {Kind: schema.Reference, RefCollection: Patients},
			"doctorId":        {Kind: schema.Reference, RefCollection: Doctors},
			"hospitalId":      {Kind: schema.Reference, RefCollection: Hospitals},
			"appointmentDate": {Kind: schema.String, MaxLength: 50},
			"status":          {Kind: schema.String, Enum: []string{"Scheduled", "Completed", "Cancelled", "No Show"}, MaxLength: 20},
			"reason":          {Kind: schema.String},
			"priority":        {Kind: schema.String, Enum: []string{"Normal", "Urgent"}},
		}),
		Required: append(baseRequired(), "appointmentDate", "status"),
		Indexes:  []string{"appointmentDate", "status", "updatedAt"},
	}
}
