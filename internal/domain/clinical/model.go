package clinical

import "time"

// Entity kinds as stored in the clinical_entity read model and named in
// lifecycle events.
type Kind string

const (
	KindPatient   Kind = "patient"
	KindEncounter Kind = "encounter"
	KindObs       Kind = "obs"
	KindCondition Kind = "condition"
	KindDiagnosis Kind = "diagnosis"
	KindOrder     Kind = "order"
	KindAllergy   Kind = "allergy"
	KindLocation  Kind = "location"
	KindProvider  Kind = "provider"
	KindUser      Kind = "user"
)

// Kinds lists every known kind.
func Kinds() []Kind {
	return []Kind{KindPatient, KindEncounter, KindObs, KindCondition, KindDiagnosis,
		KindOrder, KindAllergy, KindLocation, KindProvider, KindUser}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Order types handled by the order observer.
const (
	OrderTypeDrug = "131168f4-15f5-102d-96e4-000c29c2a5d7"
	OrderTypeTest = "52a447d3-a64a-11e3-9aeb-50e549534c5e"
)

// Concept is a coded terminology entry.
type Concept struct {
	UUID    string `json:"uuid"`
	Display string `json:"display,omitempty"`
}

// Attribute is a typed attribute value on a provider or location.
type Attribute struct {
	AttributeTypeUUID string `json:"attributeTypeUuid"`
	Value             string `json:"value"`
	Voided            bool   `json:"voided,omitempty"`
}

func findAttribute(attrs []Attribute, typeUUID string) string {
	if typeUUID == "" {
		return ""
	}
	for _, a := range attrs {
		if !a.Voided && a.AttributeTypeUUID == typeUUID {
			return a.Value
		}
	}
	return ""
}

type PatientIdentifier struct {
	IdentifierTypeUUID string `json:"identifierTypeUuid"`
	Identifier         string `json:"identifier"`
	Preferred          bool   `json:"preferred,omitempty"`
	Voided             bool   `json:"voided,omitempty"`
}

type Patient struct {
	UUID        string              `json:"uuid"`
	Identifiers []PatientIdentifier `json:"identifiers,omitempty"`
	GivenName   string              `json:"givenName,omitempty"`
	MiddleName  string              `json:"middleName,omitempty"`
	FamilyName  string              `json:"familyName,omitempty"`
	Gender      string              `json:"gender,omitempty"`
	BirthDate   *time.Time          `json:"birthdate,omitempty"`
	PhoneNumber string              `json:"phoneNumber,omitempty"`
	Voided      bool                `json:"voided,omitempty"`
}

// Identifier returns the first non-voided identifier of the given type.
func (p *Patient) Identifier(typeUUID string) string {
	if p == nil || typeUUID == "" {
		return ""
	}
	for _, id := range p.Identifiers {
		if !id.Voided && id.IdentifierTypeUUID == typeUUID {
			return id.Identifier
		}
	}
	return ""
}

func (p *Patient) FullName() string {
	name := p.GivenName
	for _, part := range []string{p.MiddleName, p.FamilyName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

type Provider struct {
	UUID       string      `json:"uuid"`
	Name       string      `json:"name,omitempty"`
	Identifier string      `json:"identifier,omitempty"`
	PersonUUID string      `json:"personUuid,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Retired    bool        `json:"retired,omitempty"`
}

func (p *Provider) Attribute(typeUUID string) string {
	if p == nil {
		return ""
	}
	return findAttribute(p.Attributes, typeUUID)
}

type Location struct {
	UUID       string      `json:"uuid"`
	Name       string      `json:"name,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Retired    bool        `json:"retired,omitempty"`
}

func (l *Location) Attribute(typeUUID string) string {
	if l == nil {
		return ""
	}
	return findAttribute(l.Attributes, typeUUID)
}

type User struct {
	UUID       string `json:"uuid"`
	Username   string `json:"username,omitempty"`
	Display    string `json:"display,omitempty"`
	PersonUUID string `json:"personUuid,omitempty"`
}

type Obs struct {
	UUID          string     `json:"uuid"`
	Concept       Concept    `json:"concept"`
	PersonUUID    string     `json:"personUuid,omitempty"`
	EncounterUUID string     `json:"encounterUuid,omitempty"`
	ObsDatetime   time.Time  `json:"obsDatetime"`
	ValueNumeric  *float64   `json:"valueNumeric,omitempty"`
	ValueText     string     `json:"valueText,omitempty"`
	ValueCoded    *Concept   `json:"valueCoded,omitempty"`
	ValueDatetime *time.Time `json:"valueDatetime,omitempty"`
	ValueBoolean  *bool      `json:"valueBoolean,omitempty"`
	Units         string     `json:"units,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	Creator       *User      `json:"creator,omitempty"`
	DateCreated   time.Time  `json:"dateCreated"`
	DateChanged   *time.Time `json:"dateChanged,omitempty"`
	GroupMembers  []Obs      `json:"groupMembers,omitempty"`
	Voided        bool       `json:"voided,omitempty"`
}

// IsGroup reports whether the obs is a parent of grouped answers.
func (o *Obs) IsGroup() bool {
	return len(o.GroupMembers) > 0
}

// LastUpdated is DateChanged when set, else DateCreated.
func (o *Obs) LastUpdated() time.Time {
	if o.DateChanged != nil {
		return *o.DateChanged
	}
	return o.DateCreated
}

type EncounterType struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

type EncounterProvider struct {
	Provider Provider `json:"provider"`
	RoleUUID string   `json:"encounterRoleUuid,omitempty"`
	Voided   bool     `json:"voided,omitempty"`
}

type Encounter struct {
	UUID              string              `json:"uuid"`
	EncounterType     EncounterType       `json:"encounterType"`
	EncounterDatetime time.Time           `json:"encounterDatetime"`
	PatientUUID       string              `json:"patientUuid,omitempty"`
	Patient           *Patient            `json:"patient,omitempty"`
	LocationUUID      string              `json:"locationUuid,omitempty"`
	Location          *Location           `json:"location,omitempty"`
	VisitUUID         string              `json:"visitUuid,omitempty"`
	Providers         []EncounterProvider `json:"encounterProviders,omitempty"`
	Obs               []Obs               `json:"obs,omitempty"`
	Creator           *User               `json:"creator,omitempty"`
	DateCreated       time.Time           `json:"dateCreated"`
	DateChanged       *time.Time          `json:"dateChanged,omitempty"`
	Voided            bool                `json:"voided,omitempty"`
}

// AllObs flattens the encounter's non-voided observations depth first: each
// group parent is followed by its members, preserving recorded order.
func (e *Encounter) AllObs() []*Obs {
	var out []*Obs
	var walk func(list []Obs)
	walk = func(list []Obs) {
		for i := range list {
			o := &list[i]
			if o.Voided {
				continue
			}
			out = append(out, o)
			walk(o.GroupMembers)
		}
	}
	walk(e.Obs)
	return out
}

type Condition struct {
	UUID               string     `json:"uuid"`
	PatientUUID        string     `json:"patientUuid,omitempty"`
	Patient            *Patient   `json:"patient,omitempty"`
	EncounterUUID      string     `json:"encounterUuid,omitempty"`
	Concept            *Concept   `json:"concept,omitempty"`
	NonCoded           string     `json:"nonCoded,omitempty"`
	ClinicalStatus     string     `json:"clinicalStatus,omitempty"`
	VerificationStatus string     `json:"verificationStatus,omitempty"`
	OnsetDate          *time.Time `json:"onsetDate,omitempty"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	AdditionalDetail   string     `json:"additionalDetail,omitempty"`
	Creator            *User      `json:"creator,omitempty"`
	DateCreated        time.Time  `json:"dateCreated"`
	DateChanged        *time.Time `json:"dateChanged,omitempty"`
	Voided             bool       `json:"voided,omitempty"`
}

type Diagnosis struct {
	UUID          string     `json:"uuid"`
	PatientUUID   string     `json:"patientUuid,omitempty"`
	Patient       *Patient   `json:"patient,omitempty"`
	EncounterUUID string     `json:"encounterUuid,omitempty"`
	Concept       *Concept   `json:"concept,omitempty"`
	NonCoded      string     `json:"nonCoded,omitempty"`
	Certainty     string     `json:"certainty,omitempty"`
	Rank          int        `json:"rank,omitempty"`
	Creator       *User      `json:"creator,omitempty"`
	DateCreated   time.Time  `json:"dateCreated"`
	DateChanged   *time.Time `json:"dateChanged,omitempty"`
	Voided        bool       `json:"voided,omitempty"`
}

type Drug struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name,omitempty"`
	Concept    *Concept `json:"concept,omitempty"`
	DosageForm *Concept `json:"dosageForm,omitempty"`
	Strength   string   `json:"strength,omitempty"`
}

type Order struct {
	UUID               string     `json:"uuid"`
	OrderTypeUUID      string     `json:"orderTypeUuid"`
	OrderNumber        string     `json:"orderNumber,omitempty"`
	Action             string     `json:"action,omitempty"`
	Urgency            string     `json:"urgency,omitempty"`
	PatientUUID        string     `json:"patientUuid,omitempty"`
	Patient            *Patient   `json:"patient,omitempty"`
	EncounterUUID      string     `json:"encounterUuid,omitempty"`
	Concept            *Concept   `json:"concept,omitempty"`
	Orderer            *Provider  `json:"orderer,omitempty"`
	DateActivated      *time.Time `json:"dateActivated,omitempty"`
	DateStopped        *time.Time `json:"dateStopped,omitempty"`
	Instructions       string     `json:"instructions,omitempty"`
	Drug               *Drug      `json:"drug,omitempty"`
	Dose               *float64   `json:"dose,omitempty"`
	DoseUnits          *Concept   `json:"doseUnits,omitempty"`
	Route              *Concept   `json:"route,omitempty"`
	Frequency          *Concept   `json:"frequency,omitempty"`
	DosingInstructions string     `json:"dosingInstructions,omitempty"`
	Voided             bool       `json:"voided,omitempty"`
}

type Allergy struct {
	UUID         string    `json:"uuid"`
	PatientUUID  string    `json:"patientUuid,omitempty"`
	Patient      *Patient  `json:"patient,omitempty"`
	AllergenType string    `json:"allergenType,omitempty"`
	Allergen     *Concept  `json:"allergen,omitempty"`
	NonCoded     string    `json:"nonCodedAllergen,omitempty"`
	Severity     *Concept  `json:"severity,omitempty"`
	Reactions    []Concept `json:"reactions,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	DateCreated  time.Time `json:"dateCreated"`
	Voided       bool      `json:"voided,omitempty"`
}
