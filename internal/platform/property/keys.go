package property

// Configuration store keys. Values are plain strings; list-valued keys hold
// comma separated codes.
const (
	// Identifier types and attributes.
	KeyCRIdentifierType       = "interop.cr.patientIdentifierTypeUuid"
	KeyNUPIIdentifierType     = "interop.nupi.patientIdentifierTypeUuid"
	KeyMFLCodeAttributeType   = "interop.mflcode.locationAttributeTypeUuid"
	KeyProviderAttributeType  = "interop.practitionerAttributeTypeUuid"
	KeySystemURL              = "interop.system.url.configuration"
	KeyCRSystemURL            = "interop.cr.system.url.configuration"
	KeyKMHFLSystemURL         = "interop.kmhfl.system.url.configuration"
	KeyDefaultFacilityMFLCode = "interop.defaultFacilityMflCode"

	// Processor allow-lists.
	KeyVitalsEncounterTypes     = "interop.encounterTypes.vitals"
	KeyVitalsConcepts           = "interop.vitalsConcepts"
	KeyComplaintsEncounterTypes = "interop.encounterTypes.complaints"
	KeyComplaintsConcepts       = "interop.complaintsConcepts"
	KeyLabEncounterTypes        = "interop.encounterTypes.labResults"
	KeyLabConcepts              = "interop.labResults"
	KeyDiagnosisEncounterTypes  = "interop.encounterTypes.diagnosis"
	KeyDiagnosisConcepts        = "interop.diagnosisConcepts"
	KeyReferralEncounterTypes   = "interop.encounterTypes.referral"
	KeyReferralScreening        = "interop.referral.screeningConcepts"
	KeyReferralSymptoms         = "interop.referral.symptomConcepts"
	KeyReferralReasons          = "interop.referral.reasonConcepts"
	KeyReferralNoteConcept      = "interop.referral.noteConcept"
	KeyReferralFacilityConcept  = "interop.referral.facilityConcept"
	KeyReferralFacilityMFLCode  = "interop.referral.facilityMflCode"
	KeyConditions               = "interop.conditions"
	KeyEnabledEncounterTypes    = "interop.encounterTypes.enabled"

	// Outbound authentication.
	KeySHRToken          = "interop.shr.token"
	KeySHRTokenURL       = "interop.shr.token.url"
	KeySHRClientID       = "interop.shr.oauth2.client.id"
	KeySHRClientSecret   = "interop.shr.oauth2.client.secret"
	KeySHRScope          = "interop.shr.oauth2.scope"
	KeyBasicAuthUsername = "interop.oauth.username"
	KeyBasicAuthPassword = "interop.oauth.password"

	// Patient registration sync.
	KeyRMSEnabled  = "interop.rms.enabled"
	KeyRMSEndpoint = "interop.rms.endpoint"
	KeyRMSUsername = "interop.rms.username"
	KeyRMSPassword = "interop.rms.password"
)

// Fallbacks applied when the matching key is unset.
const (
	DefaultReferralFacilityConcept = "159495AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	DefaultMFLCodeAttributeType    = "8a845a89-6aa5-4111-81d3-0af31c45c002"
	DefaultRMSEndpoint             = "https://siaya.tsconect.com/api"
)
