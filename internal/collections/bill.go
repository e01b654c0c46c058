package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Bill returns the bills collection schema.
func Bill() *schema.Schema {
	return &schema.Schema{
		Name:    Bills,
		Version: 0,
		Fields: merge(map[string]schema.Field{
			"patientId":       {Kind: schema.Reference, RefCollection: Patients},
			"hospitalId":      {Kind: schema.Reference, RefCollection: Hospitals},
			"doctorId":        {Kind: schema.Reference, RefCollection: Doctors},
			"medicalRecordId": {Kind: schema.Reference, RefCollection: MedicalRecords},
			"billDate":        {Kind: schema.String, MaxLength: 50},
			"totalAmount":     {Kind: schema.Number},
			"paidAmount":      {Kind: schema.Number},
			"status":          {Kind: schema.String, Enum: []string{"Pending", "Paid", "Partial", "Cancelled"}, MaxLength: 20},
			"paymentMethod":   {Kind: schema.String, Enum: []string{"Cash", "Card", "Bank Transfer", "Insurance"}},
			"items":           {Kind: schema.Array},
			"discount":        {Kind: schema.Number},
		}),
		Required: append(baseRequired(), "patientId", "hospitalId", "billDate", "totalAmount", "status"),
		Indexes:  []string{"billDate", "status", "updatedAt"},
	}
}
