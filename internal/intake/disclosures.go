package intake

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
)

// DisclosureKind names a yes/no disclosure question. Its value is the flag's
// wire key.
type DisclosureKind string

// DetailShape is the closed set of detail entry types a disclosure can carry.
type DetailShape string

const (
	ShapeMedical  DetailShape = "medical"
	ShapePolicy   DetailShape = "policy"
	ShapeAviation DetailShape = "aviation"
	ShapeActivity DetailShape = "activity"
	ShapeTravel   DetailShape = "travel"
	ShapeFamily   DetailShape = "family"
)

// Section groups disclosures on the form.
type Section string

const (
	SectionMedical   Section = "medical"
	SectionPolicies  Section = "policies"
	SectionLifestyle Section = "lifestyle"
	SectionFamily    Section = "family"
)

// DisclosurePair is one row of the pairing table: answering Flag "yes"
// requires at least one entry under DetailsField, each of the given Shape.
type DisclosurePair struct {
	Kind         DisclosureKind
	DetailsField string
	Shape        DetailShape
	Section      Section
}

// Flag returns the wire key of the yes/no answer.
func (p DisclosurePair) Flag() string {
	return string(p.Kind)
}

// disclosurePairs is the single source of truth for conditional disclosure
// rules. Adding a conditional section is a new row here.
var disclosurePairs = []DisclosurePair{
	{"highBloodPressure", "highBloodPressureDetails", ShapeMedical, SectionMedical},
	{"heartDisease", "heartDiseaseDetails", ShapeMedical, SectionMedical},
	{"stroke", "strokeDetails", ShapeMedical, SectionMedical},
	{"diabetes", "diabetesDetails", ShapeMedical, SectionMedical},
	{"cancer", "cancerDetails", ShapeMedical, SectionMedical},
	{"kidneyDisease", "kidneyDiseaseDetails", ShapeMedical, SectionMedical},
	{"liverDisease", "liverDiseaseDetails", ShapeMedical, SectionMedical},
	{"respiratoryDisorder", "respiratoryDisorderDetails", ShapeMedical, SectionMedical},
	{"mentalIllness", "mentalIllnessDetails", ShapeMedical, SectionMedical},
	{"neurologicalDisorder", "neurologicalDisorderDetails", ShapeMedical, SectionMedical},
	{"digestiveDisorder", "digestiveDisorderDetails", ShapeMedical, SectionMedical},
	{"musculoskeletalDisorder", "musculoskeletalDisorderDetails", ShapeMedical, SectionMedical},
	{"bloodDisorder", "bloodDisorderDetails", ShapeMedical, SectionMedical},
	{"thyroidDisorder", "thyroidDisorderDetails", ShapeMedical, SectionMedical},
	{"eyeOrEarDisorder", "eyeOrEarDisorderDetails", ShapeMedical, SectionMedical},
	{"reproductiveDisorder", "reproductiveDisorderDetails", ShapeMedical, SectionMedical},
	{"hadSurgery", "surgeryDetails", ShapeMedical, SectionMedical},
	{"hospitalised", "hospitalisationDetails", ShapeMedical, SectionMedical},
	{"onMedication", "medicationDetails", ShapeMedical, SectionMedical},
	{"pendingMedicalInvestigation", "pendingInvestigationDetails", ShapeMedical, SectionMedical},
	{"physicalDisability", "disabilityDetails", ShapeMedical, SectionMedical},
	{"hasExistingPolicies", "existingPoliciesDetails", ShapePolicy, SectionPolicies},
	{"hasDeclinedPolicies", "declinedPoliciesDetails", ShapePolicy, SectionPolicies},
	{"flownAsPilot", "flownAsPilotDetails", ShapeAviation, SectionLifestyle},
	{"hazardousSports", "hazardousSportsDetails", ShapeActivity, SectionLifestyle},
	{"extendedTravel", "extendedTravelDetails", ShapeTravel, SectionLifestyle},
	{"familyMedicalHistory", "familyMedicalHistoryDetails", ShapeFamily, SectionFamily},
}

// DisclosurePairs returns a copy of the pairing table.
func DisclosurePairs() []DisclosurePair {
	return append([]DisclosurePair(nil), disclosurePairs...)
}

// Detail is a single disclosure detail entry. Implementations are the
// per-shape structs below.
type Detail interface {
	Shape() DetailShape
}

type MedicalDetail struct {
	Condition   string `json:"condition" validate:"required"`
	DiagnosedOn Date   `json:"diagnosedOn,omitempty" validate:"omitempty,isodate"`
	Treatment   string `json:"treatment,omitempty"`
	Doctor      string `json:"doctor,omitempty"`
	Ongoing     bool   `json:"ongoing"`
}

type PolicyDetail struct {
	Insurer      string          `json:"insurer" validate:"required"`
	PolicyNumber string          `json:"policyNumber,omitempty"`
	SumAssured   decimal.Decimal `json:"sumAssured" validate:"gte=0"`
	Year         int             `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Status       string          `json:"status,omitempty"`
}

type AviationDetail struct {
	AircraftType string          `json:"aircraftType" validate:"required"`
	HoursPerYear decimal.Decimal `json:"hoursPerYear" validate:"gt=0"`
	LicenceType  string          `json:"licenceType,omitempty"`
}

type ActivityDetail struct {
	Activity  string `json:"activity" validate:"required"`
	Frequency string `json:"frequency" validate:"required"`
	Level     string `json:"level,omitempty"`
}

type TravelDetail struct {
	Destination    string `json:"destination" validate:"required"`
	DurationMonths int    `json:"durationMonths" validate:"gt=0"`
	Purpose        string `json:"purpose,omitempty"`
}

type FamilyDetail struct {
	Relationship string `json:"relationship" validate:"required"`
	Condition    string `json:"condition" validate:"required"`
	AgeAtOnset   int    `json:"ageAtOnset,omitempty" validate:"omitempty,gte=0,lte=120"`
}

func (*MedicalDetail) Shape() DetailShape  { return ShapeMedical }
func (*PolicyDetail) Shape() DetailShape   { return ShapePolicy }
func (*AviationDetail) Shape() DetailShape { return ShapeAviation }
func (*ActivityDetail) Shape() DetailShape { return ShapeActivity }
func (*TravelDetail) Shape() DetailShape   { return ShapeTravel }
func (*FamilyDetail) Shape() DetailShape   { return ShapeFamily }

func newDetail(shape DetailShape) Detail {
	switch shape {
	case ShapeMedical:
		return &MedicalDetail{}
	case ShapePolicy:
		return &PolicyDetail{}
	case ShapeAviation:
		return &AviationDetail{}
	case ShapeActivity:
		return &ActivityDetail{}
	case ShapeTravel:
		return &TravelDetail{}
	case ShapeFamily:
		return &FamilyDetail{}
	default:
		panic(fmt.Sprintf("intake: unknown detail shape %q", shape))
	}
}

// Disclosure is the answer to one disclosure question plus its details.
type Disclosure struct {
	Answer  Answer
	Details []Detail
}

func (d Disclosure) clone() Disclosure {
	if d.Details == nil {
		return d
	}
	details := make([]Detail, len(d.Details))
	for i, detail := range d.Details {
		v := reflect.ValueOf(detail).Elem()
		c := reflect.New(v.Type())
		c.Elem().Set(v)
		details[i] = c.Interface().(Detail)
	}
	return Disclosure{Answer: d.Answer, Details: details}
}

// Disclosures holds the answered disclosure questions keyed by kind.
type Disclosures map[DisclosureKind]Disclosure

// DecodeError reports a payload value that could not be decoded into its
// typed form.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeDisclosures(raw map[string]json.RawMessage) (Disclosures, error) {
	out := Disclosures{}
	for _, p := range disclosurePairs {
		flagRaw, hasFlag := raw[p.Flag()]
		detailsRaw, hasDetails := raw[p.DetailsField]
		if !hasFlag && !hasDetails {
			continue
		}
		var d Disclosure
		if hasFlag {
			if err := json.Unmarshal(flagRaw, &d.Answer); err != nil {
				return nil, &DecodeError{Path: p.Flag(), Err: err}
			}
		}
		// Details only count behind a "yes"; anything sent with another
		// answer is dropped unread.
		if d.Answer == AnswerYes && hasDetails && string(detailsRaw) != "null" {
			var items []json.RawMessage
			if err := json.Unmarshal(detailsRaw, &items); err != nil {
				return nil, &DecodeError{Path: p.DetailsField, Err: err}
			}
			for i, item := range items {
				detail := newDetail(p.Shape)
				if err := json.Unmarshal(item, detail); err != nil {
					return nil, &DecodeError{Path: fmt.Sprintf("%s[%d]", p.DetailsField, i), Err: err}
				}
				d.Details = append(d.Details, detail)
			}
		}
		out[p.Kind] = d
	}
	return out, nil
}

type applicationFields Application

// UnmarshalJSON decodes the structured sections and lifts the flat
// flag/details keys into Disclosures.
func (a *Application) UnmarshalJSON(data []byte) error {
	var base applicationFields
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	disclosures, err := decodeDisclosures(raw)
	if err != nil {
		return err
	}
	*a = Application(base)
	a.Disclosures = disclosures
	return nil
}

// MarshalJSON writes Disclosures back out as flat flag/details keys.
func (a Application) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(applicationFields(a))
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for _, p := range disclosurePairs {
		d, ok := a.Disclosures[p.Kind]
		if !ok {
			continue
		}
		answer, err := json.Marshal(d.Answer)
		if err != nil {
			return nil, err
		}
		out[p.Flag()] = answer
		if len(d.Details) > 0 {
			details, err := json.Marshal(d.Details)
			if err != nil {
				return nil, err
			}
			out[p.DetailsField] = details
		}
	}
	return json.Marshal(out)
}
