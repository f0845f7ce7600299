package fhirmodels

// Common FHIR value set constants used across the interop pipeline.

// Code systems.
const (
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemConditionClinical   = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemConditionVerStatus  = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	SystemConditionCategory   = "http://terminology.hl7.org/CodeSystem/condition-category"
	SystemAllergyClinical     = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	SystemAllergyVerification = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
	SystemActCode             = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	SystemCIEL                = "https://openconceptlab.org/orgs/CIEL/sources/CIEL"
	SystemSHR                 = "https://shr.kenya-hie.health"
)

// EncounterStatus values per FHIR R4.
const (
	EncounterStatusInProgress     = "in-progress"
	EncounterStatusFinished       = "finished"
	EncounterStatusCancelled      = "cancelled"
	EncounterStatusEnteredInError = "entered-in-error"
)

// EncounterClass codes per FHIR R4 v3-ActCode.
const (
	EncounterClassAmbulatory = "AMB"
)

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns = "vital-signs"
	ObsCategoryLaboratory = "laboratory"
	ObsCategoryExam       = "exam"
)

// ObservationStatus codes.
const (
	ObsStatusFinal          = "final"
	ObsStatusAmended        = "amended"
	ObsStatusEnteredInError = "entered-in-error"
)

// ConditionClinicalStatus codes.
const (
	ConditionActive   = "active"
	ConditionInactive = "inactive"
	ConditionResolved = "resolved"
)

// ConditionVerificationStatus codes.
const (
	ConditionProvisional    = "provisional"
	ConditionConfirmed      = "confirmed"
	ConditionEnteredInError = "entered-in-error"
)

// ConditionCategory codes.
const (
	ConditionCategoryEncounterDiagnosis = "encounter-diagnosis"
	ConditionCategoryProblemListItem    = "problem-list-item"
)

// Request status and intent codes shared by ServiceRequest and MedicationRequest.
const (
	RequestStatusActive    = "active"
	RequestStatusCompleted = "completed"
	RequestStatusRevoked   = "revoked"
	RequestIntentOrder     = "order"
)

// AllergyIntolerance category codes.
const (
	AllergyCategoryFood        = "food"
	AllergyCategoryMedication  = "medication"
	AllergyCategoryEnvironment = "environment"
)

// Identifier use.
const (
	IdentifierUseOfficial = "official"
	IdentifierUseUsual    = "usual"
)

// Referral category used when a referral carries no explicit reason.
const (
	ReferralDefaultCategoryCode    = "consultation"
	ReferralDefaultCategoryDisplay = "Consultation"
)
