package collections

import (
	"testing"

	"github.com/sehetyar/sync-agent/internal/platform/schema"
)

func TestAll_CoversEveryName(t *testing.T) {
	all := All()
	for _, name := range Names() {
		s, ok := all[name]
		if !ok {
			t.Fatalf("missing schema for collection %q", name)
		}
		if s.Name != name {
			t.Errorf("schema registered under %q has Name %q", name, s.Name)
		}
	}
	if len(all) != len(Names()) {
		t.Errorf("expected %d schemas, got %d", len(Names()), len(all))
	}
}

func TestAll_BookkeepingFields(t *testing.T) {
	for name, s := range All() {
		for _, field := range []string{"_id", "createdAt", "updatedAt", "syncStatus"} {
			if _, ok := s.Fields[field]; !ok {
				t.Errorf("collection %q missing bookkeeping field %q", name, field)
			}
		}
		required := make(map[string]bool, len(s.Required))
		for _, r := range s.Required {
			required[r] = true
		}
		for _, field := range []string{"_id", "createdAt", "updatedAt", "syncStatus"} {
			if !required[field] {
				t.Errorf("collection %q does not require %q", name, field)
			}
		}
	}
}

func TestAll_SyncStatusEnum(t *testing.T) {
	for name, s := range All() {
		f := s.Fields["syncStatus"]
		if len(f.Enum) != 3 {
			t.Fatalf("collection %q syncStatus enum has %d values", name, len(f.Enum))
		}
		want := map[string]bool{StatusSynced: true, StatusPending: true, StatusFailed: true}
		for _, v := range f.Enum {
			if !want[v] {
				t.Errorf("collection %q has unexpected syncStatus value %q", name, v)
			}
		}
	}
}

func TestAll_ReferenceFieldsNameRealCollections(t *testing.T) {
	all := All()
	for name, s := range all {
		for _, field := range s.RefFields() {
			ref := s.Fields[field].RefCollection
			if ref == "" {
				t.Errorf("collection %q reference field %q has no target collection", name, field)
				continue
			}
			if _, ok := all[ref]; !ok {
				t.Errorf("collection %q field %q references unknown collection %q", name, field, ref)
			}
		}
	}
}

func TestAppointment_ValidatesRealisticDocument(t *testing.T) {
	doc := map[string]interface{}{
		"_id":             "apt-001",
		"createdAt":       "2025-03-01T09:00:00Z",
		"updatedAt":       "2025-03-01T09:00:00Z",
		"syncStatus":      StatusSynced,
		"patientId":       map[string]interface{}{"_id": "pat-1", "name": "Ali Khan"},
		"doctorId":        "doc-1",
		"appointmentDate": "2025-03-05",
		"status":          "Scheduled",
		"priority":        "Urgent",
	}
	if err := Appointment().Validate(doc); err != nil {
		t.Fatalf("expected valid appointment, got %v", err)
	}

	doc["status"] = "Rescheduled"
	if err := Appointment().Validate(doc); err == nil {
		t.Fatal("expected enum violation for status")
	}
}

func TestAll_IndexedFieldsExist(t *testing.T) {
	for name, s := range All() {
		for _, idx := range s.Indexes {
			if _, ok := s.Fields[idx]; !ok {
				t.Errorf("collection %q indexes unknown field %q", name, idx)
			}
		}
	}
}

func TestWardCapacity_EquipmentList(t *testing.T) {
	s := WardCapacity()
	f, ok := s.Fields["equipmentIds"]
	if !ok {
		t.Fatal("capacity schema missing equipmentIds")
	}
	if f.Kind != schema.ReferenceList {
		t.Errorf("equipmentIds kind = %v, want ReferenceList", f.Kind)
	}
}
