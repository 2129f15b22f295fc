package intake

import (
	"encoding/json"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Answer is a yes/no questionnaire response. The empty value means unanswered.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

func (a Answer) IsYes() bool { return a == AnswerYes }

type HeightUnit string

const (
	HeightUnitCentimetres HeightUnit = "cm"
	HeightUnitMetres      HeightUnit = "m"
	HeightUnitFeet        HeightUnit = "ft"
)

// PaymentFrequency is how often premiums fall due.
type PaymentFrequency string

const (
	FrequencyMonthly    PaymentFrequency = "monthly"
	FrequencyQuarterly  PaymentFrequency = "quarterly"
	FrequencyHalfYearly PaymentFrequency = "half_yearly"
	FrequencyAnnually   PaymentFrequency = "annually"
)

// Months returns the number of months between premium due dates, or 0 for an
// unknown frequency.
func (f PaymentFrequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyHalfYearly:
		return 6
	case FrequencyAnnually:
		return 12
	default:
		return 0
	}
}

const PaymentMethodDebitOrder = "debit_order"

type AlcoholHabit string

const (
	AlcoholNever      AlcoholHabit = "never"
	AlcoholFormer     AlcoholHabit = "former"
	AlcoholOccasional AlcoholHabit = "occasional"
	AlcoholRegular    AlcoholHabit = "regular"
)

// Date is a calendar date (YYYY-MM-DD). Unparseable input is retained rather
// than rejected by the decoder so validation can report it against its field.
type Date struct {
	civil.Date
	raw string
}

// NewDate wraps a civil date.
func NewDate(d civil.Date) Date {
	return Date{Date: d}
}

// IsSet reports whether a valid date was supplied.
func (d Date) IsSet() bool {
	return d.raw == "" && d.Date != (civil.Date{})
}

func (d Date) text() string {
	if d.raw != "" {
		return d.raw
	}
	if d.Date == (civil.Date{}) {
		return ""
	}
	return d.Date.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.text())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		*d = Date{raw: s}
		return nil
	}
	*d = Date{Date: parsed}
	return nil
}

// Application is a life-insurance application as captured on the intake form.
// Disclosures travel as flat flag/details keys on the wire and are held in a
// typed map here; see disclosurePairs.
type Application struct {
	SerialNumber string `json:"serialNumber,omitempty" validate:"omitempty,max=32"`

	LifeInsured         Person   `json:"lifeInsured"`
	Income              Income   `json:"income"`
	IsPolicyHolderPayer *bool    `json:"isPolicyHolderPayer" validate:"required"`
	Payer               *Payer   `json:"payer,omitempty" validate:"-"`
	Coverage            Coverage `json:"coverage"`

	PrimaryBeneficiaries    []Beneficiary `json:"primaryBeneficiaries" validate:"required,min=1,dive"`
	ContingentBeneficiaries []Beneficiary `json:"contingentBeneficiaries,omitempty" validate:"omitempty,dive"`

	Lifestyle      Lifestyle      `json:"lifestyle"`
	ViralInfection ViralInfection `json:"viralInfection"`
	Signatures     Signatures     `json:"signatures"`

	Disclosures Disclosures `json:"-"`
}

// Clone returns a copy that shares no pointers, slices or maps with a.
func (a Application) Clone() Application {
	c := a
	if a.IsPolicyHolderPayer != nil {
		v := *a.IsPolicyHolderPayer
		c.IsPolicyHolderPayer = &v
	}
	if a.Payer != nil {
		payer := *a.Payer
		c.Payer = &payer
	}
	c.Coverage.PolicyTerm = cloneInt(a.Coverage.PolicyTerm)
	c.Coverage.PremiumTerm = cloneInt(a.Coverage.PremiumTerm)
	c.PrimaryBeneficiaries = slices.Clone(a.PrimaryBeneficiaries)
	c.ContingentBeneficiaries = slices.Clone(a.ContingentBeneficiaries)
	if a.Disclosures != nil {
		c.Disclosures = make(Disclosures, len(a.Disclosures))
		for kind, d := range a.Disclosures {
			c.Disclosures[kind] = d.clone()
		}
	}
	return c
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// PayerIsHolder reports whether the life insured pays the premiums. An
// unanswered flag is treated as yes.
func (a *Application) PayerIsHolder() bool {
	return a.IsPolicyHolderPayer == nil || *a.IsPolicyHolderPayer
}

type Person struct {
	Title              string          `json:"title,omitempty" validate:"omitempty,oneof=Mr Mrs Ms Miss Dr Prof Rev"`
	FirstName          string          `json:"firstName" validate:"required,max=64"`
	MiddleName         string          `json:"middleName,omitempty" validate:"max=64"`
	LastName           string          `json:"lastName" validate:"required,max=64"`
	DateOfBirth        Date            `json:"dateOfBirth" validate:"required,isodate"`
	Gender             string          `json:"gender" validate:"required,oneof=male female"`
	MaritalStatus      string          `json:"maritalStatus" validate:"required,oneof=single married divorced widowed"`
	Nationality        string          `json:"nationality" validate:"required"`
	Occupation         string          `json:"occupation" validate:"required"`
	Telephone          string          `json:"telephone" validate:"required,localphone"`
	Email              string          `json:"email,omitempty" validate:"omitempty,email"`
	ResidentialAddress string          `json:"residentialAddress" validate:"required"`
	PostalAddress      string          `json:"postalAddress,omitempty"`
	Identification     Identification  `json:"identification"`
	Height             Height          `json:"height"`
	WeightKg           decimal.Decimal `json:"weightKg" validate:"required,gt=0"`
}

// FullName joins the non-empty name parts.
func (p Person) FullName() string {
	name := p.FirstName
	if p.MiddleName != "" {
		name += " " + p.MiddleName
	}
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}

type Identification struct {
	Type   string `json:"type" validate:"required,oneof=ghana_card passport drivers_licence voter_id"`
	Number string `json:"number" validate:"required,min=4,max=32"`
}

type Height struct {
	Value decimal.Decimal `json:"value" validate:"required,gt=0"`
	Unit  HeightUnit      `json:"unit" validate:"required,oneof=cm m ft"`
}

type Income struct {
	BasicMonthly decimal.Decimal `json:"basicMonthly" validate:"required,gt=0"`
	OtherMonthly decimal.Decimal `json:"otherMonthly" validate:"gte=0"`
}

// Payer holds the premium payer's details. Only checked when the life insured
// is not the payer.
type Payer struct {
	FirstName    string `json:"firstName" validate:"required,max=64"`
	LastName     string `json:"lastName" validate:"required,max=64"`
	IDType       string `json:"idType" validate:"required,oneof=ghana_card passport drivers_licence voter_id"`
	IDNumber     string `json:"idNumber" validate:"required,min=4,max=32"`
	Telephone    string `json:"telephone,omitempty" validate:"omitempty,localphone"`
	Relationship string `json:"relationship,omitempty"`
	Bank         string `json:"bank,omitempty"`
	BankBranch   string `json:"bankBranch,omitempty"`
	AccountNo    string `json:"accountNumber,omitempty" validate:"omitempty,numeric,min=6,max=20"`
}

type Coverage struct {
	ContractType     string           `json:"contractType" validate:"required,oneof=term whole_life endowment education funeral"`
	SumAssured       decimal.Decimal  `json:"sumAssured" validate:"required,gt=0"`
	Premium          decimal.Decimal  `json:"premium" validate:"required,gt=0"`
	PaymentFrequency PaymentFrequency `json:"paymentFrequency" validate:"required,oneof=monthly quarterly half_yearly annually"`
	PaymentMethod    string           `json:"paymentMethod" validate:"required,oneof=debit_order cash cheque mobile_money staff_deduction"`
	CommencementDate Date             `json:"commencementDate,omitempty" validate:"omitempty,isodate"`
	PolicyTerm       *int             `json:"policyTerm,omitempty"`
	PremiumTerm      *int             `json:"premiumTerm,omitempty"`
}

type Beneficiary struct {
	Name         string          `json:"name" validate:"required,max=128"`
	DateOfBirth  Date            `json:"dateOfBirth" validate:"required,isodate"`
	Gender       string          `json:"gender" validate:"required,oneof=male female"`
	Relationship string          `json:"relationship" validate:"required"`
	Telephone    string          `json:"telephone,omitempty" validate:"omitempty,localphone"`
	Percentage   decimal.Decimal `json:"percentage" validate:"required,gt=0,lte=100"`
	Irrevocable  bool            `json:"irrevocable"`
}

type Lifestyle struct {
	Alcohol Alcohol `json:"alcohol"`
	Tobacco Tobacco `json:"tobacco"`
}

type Alcohol struct {
	Habit        AlcoholHabit    `json:"habit" validate:"required,oneof=never former occasional regular"`
	Beer         bool            `json:"beer"`
	Wine         bool            `json:"wine"`
	Spirits      bool            `json:"spirits"`
	UnitsPerWeek decimal.Decimal `json:"unitsPerWeek" validate:"gte=0"`
}

func (a Alcohol) anyBeverage() bool {
	return a.Beer || a.Wine || a.Spirits
}

type Tobacco struct {
	UsedNicotineLast12Months Answer `json:"usedNicotineLast12Months" validate:"required,answer"`
	Cigarettes               bool   `json:"cigarettes"`
	Cigars                   bool   `json:"cigars"`
	Pipe                     bool   `json:"pipe"`
	Vape                     bool   `json:"vape"`
	Snuff                    bool   `json:"snuff"`
	DailyQuantity            int    `json:"dailyQuantity" validate:"gte=0"`
}

func (t Tobacco) anyProduct() bool {
	return t.Cigarettes || t.Cigars || t.Pipe || t.Vape || t.Snuff
}

type ViralInfection struct {
	TestedPositive     Answer         `json:"testedPositiveViralInfection" validate:"required,answer"`
	TestedPositiveFor  InfectionFlags `json:"testedPositiveFor"`
	AwaitingResultsFor InfectionFlags `json:"awaitingResultsFor"`
}

type InfectionFlags struct {
	Covid19   bool `json:"covid19"`
	HIV       bool `json:"hiv"`
	Hepatitis bool `json:"hepatitis"`
}

func (f InfectionFlags) any() bool {
	return f.Covid19 || f.HIV || f.Hepatitis
}

// Signatures hold references to captured signature artifacts. A reference is
// present when non-empty.
type Signatures struct {
	LifeInsured      string `json:"lifeInsured" validate:"required"`
	PolicyOwner      string `json:"policyOwner" validate:"required"`
	PaymentAuthority string `json:"paymentAuthority,omitempty"`
}
