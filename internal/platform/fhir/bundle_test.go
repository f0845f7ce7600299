package fhir

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewTransactionBundle(t *testing.T) {
	b := NewTransactionBundle()
	if b.ResourceType != "Bundle" {
		t.Errorf("expected resourceType Bundle, got %s", b.ResourceType)
	}
	if b.Type != "transaction" {
		t.Errorf("expected type transaction, got %s", b.Type)
	}
	if len(b.Entry) != 0 {
		t.Errorf("expected no entries, got %d", len(b.Entry))
	}
	if b.Timestamp != nil {
		t.Error("expected no timestamp on a fresh transaction bundle")
	}
}

func TestBundle_AddPut(t *testing.T) {
	b := NewTransactionBundle()
	obs := &Observation{Resource: Resource{ResourceType: TypeObservation, ID: "obs-1"}, Status: "final"}
	if err := b.AddPut(obs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Entry) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(b.Entry))
	}
	e := b.Entry[0]
	if e.Request == nil || e.Request.Method != "PUT" {
		t.Fatalf("expected PUT request, got %+v", e.Request)
	}
	if e.Request.URL != "Observation/obs-1" {
		t.Errorf("expected url 'Observation/obs-1', got %q", e.Request.URL)
	}
	if e.FullURL != "Observation/obs-1" {
		t.Errorf("expected fullUrl 'Observation/obs-1', got %q", e.FullURL)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(e.Resource, &parsed); err != nil {
		t.Fatalf("failed to unmarshal resource: %v", err)
	}
	if parsed["resourceType"] != "Observation" {
		t.Errorf("expected resourceType Observation, got %v", parsed["resourceType"])
	}
	if parsed["id"] != "obs-1" {
		t.Errorf("expected id obs-1, got %v", parsed["id"])
	}
}

func TestBundle_AddPut_MissingID(t *testing.T) {
	b := NewTransactionBundle()
	err := b.AddPut(&Condition{Resource: Resource{ResourceType: TypeCondition}})
	if !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if len(b.Entry) != 0 {
		t.Errorf("expected no entries after failure, got %d", len(b.Entry))
	}
}

func TestBundle_RequestsPreserveOrder(t *testing.T) {
	b := NewTransactionBundle()
	_ = b.AddPut(&Encounter{Resource: Resource{ResourceType: TypeEncounter, ID: "e1"}, Status: "finished"})
	_ = b.AddPut(&Observation{Resource: Resource{ResourceType: TypeObservation, ID: "o1"}})
	_ = b.AddPut(&Observation{Resource: Resource{ResourceType: TypeObservation, ID: "o2"}})
	_ = b.AddPut(&Medication{Resource: Resource{ResourceType: TypeMedication, ID: "m1"}})

	want := []string{"PUT Encounter/e1", "PUT Observation/o1", "PUT Observation/o2", "PUT Medication/m1"}
	got := b.Requests()
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "123"); got != "Patient/123" {
		t.Errorf("expected 'Patient/123', got %q", got)
	}
}
