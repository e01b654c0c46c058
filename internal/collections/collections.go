// Package collections declares the local collection schemas mirrored from the
// Sehetyar server, one per entity type. Every collection shares the sync
// bookkeeping fields (_id, createdAt, updatedAt, syncStatus); the rest of the
// shape is entity-specific.
package collections

import "github.com/sehetyar/sync-agent/internal/platform/schema"

// Collection names.
const (
	Appointments   = "appointments"
	Bills          = "bills"
	Capacity       = "capacity"
	Facilities     = "facilities"
	Pharmacies     = "pharmacies"
	Workers        = "workers"
	Patients       = "patients"
	Doctors        = "doctors"
	Hospitals      = "hospitals"
	MedicalRecords = "medical-records"
)

// SyncStatus values carried by every locally held document.
const (
	StatusSynced  = "synced"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// base returns the bookkeeping fields common to all collections.
func base() map[string]schema.Field {
	return map[string]schema.Field{
		"_id":        {Kind: schema.String, MaxLength: 100},
		"createdAt":  {Kind: schema.String, MaxLength: 50},
		"updatedAt":  {Kind: schema.String, MaxLength: 50},
		"syncStatus": {Kind: schema.String, Enum: []string{StatusSynced, StatusPending, StatusFailed}},
	}
}

// baseRequired lists the always-required bookkeeping fields.
func baseRequired() []string {
	return []string{"_id", "createdAt", "updatedAt", "syncStatus"}
}

// merge combines entity fields over the shared base.
func merge(fields map[string]schema.Field) map[string]schema.Field {
	out := base()
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// All returns every collection schema, keyed by name.
func All() map[string]*schema.Schema {
	schemas := []*schema.Schema{
		Appointment(),
		Bill(),
		WardCapacity(),
		Facility(),
		Pharmacy(),
		Worker(),
		Patient(),
		Doctor(),
		Hospital(),
		MedicalRecord(),
	}
	out := make(map[string]*schema.Schema, len(schemas))
	for _, s := range schemas {
		out[s.Name] = s
	}
	return out
}

// Names returns all collection names.
func Names() []string {
	return []string{
		Appointments, Bills, Capacity, Facilities, Pharmacies,
		Workers, Patients, Doctors, Hospitals, MedicalRecords,
	}
}
