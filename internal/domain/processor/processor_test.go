package processor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/reference"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

var (
	_ Processor[*fhir.Observation]    = (*ObservationProcessor)(nil)
	_ Processor[*fhir.Condition]      = (*DiagnosisProcessor)(nil)
	_ Processor[*fhir.ServiceRequest] = (*ReferralProcessor)(nil)
)

var system = auth.SystemPrincipal("test")

type fixture struct {
	props *property.Reader
	repo  *clinical.MemoryRepo
	svc   *clinical.Service
	tr    *translate.Translator
}

func newFixture(values map[string]string) *fixture {
	props := property.NewReader(property.NewMemoryStore(values), zerolog.Nop())
	repo := clinical.NewMemoryRepo()
	svc := clinical.NewService(repo)
	tr := translate.New(reference.NewResolver(props, svc, zerolog.Nop()))
	return &fixture{props: props, repo: repo, svc: svc, tr: tr}
}

func obs(uuid, concept string) clinical.Obs {
	v := 1.0
	return clinical.Obs{UUID: uuid, Concept: clinical.Concept{UUID: concept}, ValueNumeric: &v}
}

func encounter(typeUUID string, list ...clinical.Obs) *clinical.Encounter {
	return &clinical.Encounter{
		UUID:              "enc-1",
		EncounterType:     clinical.EncounterType{UUID: typeUUID},
		EncounterDatetime: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Patient:           &clinical.Patient{UUID: "pat-1"},
		Obs:               list,
	}
}

func TestRule_EmptyConfigurationMatchesNothing(t *testing.T) {
	f := newFixture(nil)
	rule := NewVitals(f.props, f.tr).Rule(context.Background())
	enc := encounter("", obs("o1", ""))
	if rule.Applies(enc) {
		t.Error("empty type set must not apply")
	}
	if got := rule.Select(enc); len(got) != 0 {
		t.Errorf("expected no selection, got %d", len(got))
	}
}

func TestRule_SelectIncludesGroupMembersInOrder(t *testing.T) {
	rule := Rule{EncounterTypes: property.NewCodeSet("E1"), Concepts: property.NewCodeSet("A", "B")}
	group := clinical.Obs{UUID: "grp", Concept: clinical.Concept{UUID: "G"}, GroupMembers: []clinical.Obs{
		obs("m1", "B"), obs("m2", "X"),
	}}
	enc := encounter("E1", obs("o1", "A"), group, obs("o2", "A"))
	got := rule.Select(enc)
	var ids []string
	for _, o := range got {
		ids = append(ids, o.UUID)
	}
	want := []string{"o1", "m1", "o2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestObservationProcessors_TypeGate(t *testing.T) {
	f := newFixture(map[string]string{
		property.KeyVitalsEncounterTypes:     "E1",
		property.KeyVitalsConcepts:           "A",
		property.KeyComplaintsEncounterTypes: "E1",
		property.KeyComplaintsConcepts:       "A",
		property.KeyLabEncounterTypes:        "E1",
		property.KeyLabConcepts:              "A",
	})
	enc := encounter("OTHER", obs("o1", "A"))
	for _, p := range []*ObservationProcessor{NewVitals(f.props, f.tr), NewComplaints(f.props, f.tr), NewLabResults(f.props, f.tr)} {
		if got := p.Process(context.Background(), system, enc); len(got) != 0 {
			t.Errorf("%s: expected nothing for unlisted encounter type, got %d", p.Name(), len(got))
		}
	}
}

func TestVitals_FiltersConcepts(t *testing.T) {
	f := newFixture(map[string]string{
		property.KeyVitalsEncounterTypes: "E1",
		property.KeyVitalsConcepts:       "A,B",
	})
	enc := encounter("E1", obs("o-a", "A"), obs("o-c", "C"))

	got := NewVitals(f.props, f.tr).Process(context.Background(), system, enc)
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	o := got[0]
	if o.ID != "o-a" {
		t.Errorf("expected o-a, got %s", o.ID)
	}
	if len(o.Category) != 1 || !o.Category[0].HasCode(fhirmodels.SystemObservationCategory, fhirmodels.ObsCategoryVitalSigns) {
		t.Errorf("expected vital-signs category, got %+v", o.Category)
	}
	if len(o.Identifier) != 1 || o.Identifier[0].System != fhirmodels.SystemSHR || o.Identifier[0].Value != "o-a" {
		t.Errorf("unexpected identifier: %+v", o.Identifier)
	}
	if o.Encounter == nil || o.Encounter.Reference != "Encounter/enc-1" {
		t.Errorf("expected encounter reference, got %+v", o.Encounter)
	}
}

func TestVitals_PerformerFromCreator(t *testing.T) {
	f := newFixture(map[string]string{
		property.KeyVitalsEncounterTypes: "E1",
		property.KeyVitalsConcepts:       "A",
	})
	o := obs("o-a", "A")
	o.Creator = &clinical.User{Username: "nurse", Display: "Nurse Akinyi"}
	got := NewVitals(f.props, f.tr).Process(context.Background(), system, encounter("E1", o))
	if len(got) != 1 || len(got[0].Performer) != 1 {
		t.Fatalf("expected a performer, got %+v", got)
	}
	if got[0].Performer[0].Identifier.Value != "Nurse Akinyi" {
		t.Errorf("unexpected performer: %+v", got[0].Performer[0])
	}
}

func TestComplaintsAndLabs_Categories(t *testing.T) {
	f := newFixture(map[string]string{
		property.KeyComplaintsEncounterTypes: "E1",
		property.KeyComplaintsConcepts:       "Y",
		property.KeyLabEncounterTypes:        "E1",
		property.KeyLabConcepts:              "L",
	})
	enc := encounter("E1", obs("o-y", "Y"), obs("o-l", "L"))

	complaints := NewComplaints(f.props, f.tr).Process(context.Background(), system, enc)
	if len(complaints) != 1 || !complaints[0].Category[0].HasCode(fhirmodels.SystemObservationCategory, fhirmodels.ObsCategoryExam) {
		t.Errorf("unexpected complaints: %+v", complaints)
	}
	labs := NewLabResults(f.props, f.tr).Process(context.Background(), system, enc)
	if len(labs) != 1 || !labs[0].Category[0].HasCode(fhirmodels.SystemObservationCategory, fhirmodels.ObsCategoryLaboratory) {
		t.Errorf("unexpected labs: %+v", labs)
	}
	if len(complaints[0].Identifier) != 0 {
		t.Error("complaints must not carry the vitals identifier")
	}
}

func TestDiagnosisProcessor(t *testing.T) {
	f := newFixture(map[string]string{
		property.KeyDiagnosisEncounterTypes: "E1",
		property.KeyDiagnosisConcepts:       "DX",
	})
	dx := clinical.Obs{UUID: "o-dx", Concept: clinical.Concept{UUID: "DX"},
		ValueCoded: &clinical.Concept{UUID: "116128AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Display: "Malaria"}}
	enc := encounter("E1", dx, obs("o-x", "X"))
	enc.Providers = []clinical.EncounterProvider{{Provider: clinical.Provider{Name: "Dr B"}}}

	got := NewDiagnosis(f.props, f.tr).Process(context.Background(), system, enc)
	if len(got) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(got))
	}
	c := got[0]
	if c.Recorder == nil || c.Recorder.Identifier.Value != "Dr B" {
		t.Errorf("unexpected recorder: %+v", c.Recorder)
	}
	if c.Encounter == nil || c.Encounter.Reference != "Encounter/enc-1" {
		t.Errorf("unexpected encounter: %+v", c.Encounter)
	}

	if got := NewDiagnosis(f.props, f.tr).Process(context.Background(), system, encounter("E9", dx)); len(got) != 0 {
		t.Errorf("expected gate to block, got %d", len(got))
	}
}

func referralFixture(extra map[string]string) *fixture {
	values := map[string]string{
		property.KeyReferralEncounterTypes: "E2",
		property.KeyReferralScreening:      "S1",
		property.KeyReferralSymptoms:       "Y1",
	}
	for k, v := range extra {
		values[k] = v
	}
	return newFixture(values)
}

func coded(uuid, concept, answer string) clinical.Obs {
	return clinical.Obs{UUID: uuid, Concept: clinical.Concept{UUID: concept},
		ValueCoded: &clinical.Concept{UUID: answer, Display: answer}}
}

func TestReferral_OneReasonCode(t *testing.T) {
	f := referralFixture(nil)
	enc := encounter("E2", coded("o-s", "S1", "POS"), coded("o-y", "Y1", "151AAAA"))

	got := NewReferral(f.props, f.tr, f.svc, zerolog.Nop()).Process(context.Background(), system, enc)
	if len(got) != 1 {
		t.Fatalf("expected exactly one ServiceRequest, got %d", len(got))
	}
	sr := got[0]
	if sr.ID != "enc-1" {
		t.Errorf("expected id enc-1, got %s", sr.ID)
	}
	if len(sr.ReasonCode) != 1 || !sr.ReasonCode[0].HasCode(fhirmodels.SystemCIEL, "151") {
		t.Errorf("expected one reason code from Y1, got %+v", sr.ReasonCode)
	}
	if len(sr.Category) != 1 || !sr.Category[0].HasCode(fhirmodels.SystemCIEL, fhirmodels.ReferralDefaultCategoryCode) {
		t.Errorf("expected default consultation category, got %+v", sr.Category)
	}
	if len(sr.SupportingInfo) != 1 || sr.SupportingInfo[0].Reference != "Observation/o-s" {
		t.Errorf("unexpected supporting info: %+v", sr.SupportingInfo)
	}
	if sr.AuthoredOn == nil || !sr.AuthoredOn.Equal(enc.EncounterDatetime) {
		t.Errorf("expected authoredOn from encounter, got %v", sr.AuthoredOn)
	}
	if sr.Requester != nil || sr.Performer != nil {
		t.Errorf("expected no facility references without configuration, got %+v %+v", sr.Requester, sr.Performer)
	}
}

func TestReferral_Gates(t *testing.T) {
	f := referralFixture(nil)
	p := NewReferral(f.props, f.tr, f.svc, zerolog.Nop())
	if got := p.Process(context.Background(), system, encounter("E1", coded("o-s", "S1", "POS"))); len(got) != 0 {
		t.Errorf("expected type gate to block, got %d", len(got))
	}
	if got := p.Process(context.Background(), system, encounter("E2", coded("o-y", "Y1", "Y"))); len(got) != 0 {
		t.Errorf("expected nothing without screening obs, got %d", len(got))
	}
}

func TestReferral_ReasonsNoteAndFacility(t *testing.T) {
	f := referralFixture(map[string]string{
		property.KeyReferralReasons:        "R1",
		property.KeyReferralNoteConcept:    "N1",
		property.KeyDefaultFacilityMFLCode: "10001",
		property.KeyKMHFLSystemURL:         "https://kmhfl.example",
	})
	if err := f.repo.Put(clinical.KindLocation, "loc-1", &clinical.Location{UUID: "loc-1", Attributes: []clinical.Attribute{
		{AttributeTypeUUID: property.DefaultMFLCodeAttributeType, Value: "13939"},
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	note := clinical.Obs{UUID: "o-n", Concept: clinical.Concept{UUID: "N1"}, ValueText: "refer urgently"}
	facility := clinical.Obs{UUID: "o-f", Concept: clinical.Concept{UUID: property.DefaultReferralFacilityConcept}, ValueText: "13939-Siaya CRH"}
	enc := encounter("E2", coded("o-s", "S1", "POS"), coded("o-r", "R1", "1272AAAA"), note, facility)

	sr := NewReferral(f.props, f.tr, f.svc, zerolog.Nop()).Process(context.Background(), system, enc)[0]
	if len(sr.Category) != 1 || !sr.Category[0].HasCode(fhirmodels.SystemCIEL, "1272") {
		t.Errorf("expected reason category, got %+v", sr.Category)
	}
	if len(sr.Note) != 1 || sr.Note[0].Text != "refer urgently" {
		t.Errorf("unexpected note: %+v", sr.Note)
	}
	if sr.Requester == nil || sr.Requester.Identifier.Value != "10001" {
		t.Errorf("unexpected requester: %+v", sr.Requester)
	}
	if len(sr.Performer) != 1 || sr.Performer[0].Identifier == nil || sr.Performer[0].Identifier.Value != "13939" {
		t.Errorf("unexpected performer: %+v", sr.Performer)
	}
}

func TestReferral_FacilityFallbacks(t *testing.T) {
	f := referralFixture(map[string]string{property.KeyReferralFacilityMFLCode: "20002"})
	if err := f.repo.Put(clinical.KindLocation, "loc-uuid", &clinical.Location{UUID: "loc-uuid", Attributes: []clinical.Attribute{
		{AttributeTypeUUID: property.DefaultMFLCodeAttributeType, Value: "30003"},
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p := NewReferral(f.props, f.tr, f.svc, zerolog.Nop())

	byUUID := clinical.Obs{UUID: "o-f", Concept: clinical.Concept{UUID: property.DefaultReferralFacilityConcept}, ValueText: "loc-uuid"}
	sr := p.Process(context.Background(), system, encounter("E2", coded("o-s", "S1", "POS"), byUUID))[0]
	if len(sr.Performer) != 1 || sr.Performer[0].Identifier.Value != "30003" {
		t.Errorf("expected location found by uuid, got %+v", sr.Performer)
	}

	unknown := clinical.Obs{UUID: "o-f", Concept: clinical.Concept{UUID: property.DefaultReferralFacilityConcept}, ValueText: "99999-Nowhere"}
	sr = p.Process(context.Background(), system, encounter("E2", coded("o-s", "S1", "POS"), unknown))[0]
	if len(sr.Performer) != 1 || sr.Performer[0].Identifier.Value != "20002" {
		t.Errorf("expected configured referral facility, got %+v", sr.Performer)
	}
}
