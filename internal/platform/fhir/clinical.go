package fhir

import "time"

// Resource types emitted by the interop pipeline.
const (
	TypeEncounter          = "Encounter"
	TypeObservation        = "Observation"
	TypeCondition          = "Condition"
	TypeServiceRequest     = "ServiceRequest"
	TypeMedication         = "Medication"
	TypeMedicationRequest  = "MedicationRequest"
	TypeAllergyIntolerance = "AllergyIntolerance"
	TypePatient            = "Patient"
	TypePractitioner       = "Practitioner"
	TypeOrganization       = "Organization"
	TypeLocation           = "Location"
)

type EncounterParticipant struct {
	Type       []CodeableConcept `json:"type,omitempty"`
	Individual *Reference        `json:"individual,omitempty"`
}

type EncounterLocation struct {
	Location Reference `json:"location"`
	Status   string    `json:"status,omitempty"`
}

type Encounter struct {
	Resource
	Identifier      []Identifier           `json:"identifier,omitempty"`
	Status          string                 `json:"status"`
	Class           *Coding                `json:"class,omitempty"`
	Type            []CodeableConcept      `json:"type,omitempty"`
	Subject         *Reference             `json:"subject,omitempty"`
	Participant     []EncounterParticipant `json:"participant,omitempty"`
	Period          *Period                `json:"period,omitempty"`
	Location        []EncounterLocation    `json:"location,omitempty"`
	ServiceProvider *Reference             `json:"serviceProvider,omitempty"`
	PartOf          *Reference             `json:"partOf,omitempty"`
}

type Observation struct {
	Resource
	Identifier           []Identifier      `json:"identifier,omitempty"`
	Status               string            `json:"status"`
	Category             []CodeableConcept `json:"category,omitempty"`
	Code                 CodeableConcept   `json:"code"`
	Subject              *Reference        `json:"subject,omitempty"`
	Encounter            *Reference        `json:"encounter,omitempty"`
	EffectiveDateTime    *time.Time        `json:"effectiveDateTime,omitempty"`
	Issued               *time.Time        `json:"issued,omitempty"`
	Performer            []Reference       `json:"performer,omitempty"`
	ValueQuantity        *Quantity         `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	ValueString          *string           `json:"valueString,omitempty"`
	ValueBoolean         *bool             `json:"valueBoolean,omitempty"`
	ValueDateTime        *time.Time        `json:"valueDateTime,omitempty"`
	Note                 []Annotation      `json:"note,omitempty"`
	HasMember            []Reference       `json:"hasMember,omitempty"`
}

// AddCategory appends a category coding unless an identical one is present.
func (o *Observation) AddCategory(cc CodeableConcept) {
	for _, existing := range o.Category {
		for _, c := range cc.Coding {
			if existing.HasCode(c.System, c.Code) {
				return
			}
		}
	}
	o.Category = append(o.Category, cc)
}

type Condition struct {
	Resource
	Identifier         []Identifier      `json:"identifier,omitempty"`
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"`
	Category           []CodeableConcept `json:"category,omitempty"`
	Code               *CodeableConcept  `json:"code,omitempty"`
	Subject            *Reference        `json:"subject,omitempty"`
	Encounter          *Reference        `json:"encounter,omitempty"`
	OnsetDateTime      *time.Time        `json:"onsetDateTime,omitempty"`
	AbatementDateTime  *time.Time        `json:"abatementDateTime,omitempty"`
	RecordedDate       *time.Time        `json:"recordedDate,omitempty"`
	Recorder           *Reference        `json:"recorder,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}

type ServiceRequest struct {
	Resource
	Identifier     []Identifier      `json:"identifier,omitempty"`
	Status         string            `json:"status"`
	Intent         string            `json:"intent"`
	Category       []CodeableConcept `json:"category,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	Code           *CodeableConcept  `json:"code,omitempty"`
	Subject        *Reference        `json:"subject,omitempty"`
	Encounter      *Reference        `json:"encounter,omitempty"`
	AuthoredOn     *time.Time        `json:"authoredOn,omitempty"`
	Requester      *Reference        `json:"requester,omitempty"`
	Performer      []Reference       `json:"performer,omitempty"`
	ReasonCode     []CodeableConcept `json:"reasonCode,omitempty"`
	Note           []Annotation      `json:"note,omitempty"`
	SupportingInfo []Reference       `json:"supportingInfo,omitempty"`
}

type Medication struct {
	Resource
	Code   *CodeableConcept `json:"code,omitempty"`
	Status string           `json:"status,omitempty"`
	Form   *CodeableConcept `json:"form,omitempty"`
}

type MedicationRequest struct {
	Resource
	Status                    string           `json:"status"`
	Intent                    string           `json:"intent"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	Subject                   *Reference       `json:"subject,omitempty"`
	Encounter                 *Reference       `json:"encounter,omitempty"`
	AuthoredOn                *time.Time       `json:"authoredOn,omitempty"`
	Requester                 *Reference       `json:"requester,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
	Note                      []Annotation     `json:"note,omitempty"`
}

type AllergyReaction struct {
	Manifestation []CodeableConcept `json:"manifestation"`
	Severity      string            `json:"severity,omitempty"`
}

type AllergyIntolerance struct {
	Resource
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"`
	Category           []string          `json:"category,omitempty"`
	Code               *CodeableConcept  `json:"code,omitempty"`
	Patient            *Reference        `json:"patient,omitempty"`
	RecordedDate       *time.Time        `json:"recordedDate,omitempty"`
	Reaction           []AllergyReaction `json:"reaction,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}
