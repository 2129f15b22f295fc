package intake

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"policydesk/pkg/requestcontext"
)

const (
	policyTermCeiling  = 75
	premiumTermCeiling = 65

	minPlausibleHeightM = 0.5
	maxPlausibleHeightM = 2.5
)

var (
	centimetresPerMetre = decimal.NewFromInt(100)
	metresPerFoot       = decimal.RequireFromString("0.3048")
	hundredPercent      = decimal.NewFromInt(100)
)

type BMIBand string

const (
	BMIUnderweight BMIBand = "Underweight"
	BMINormal      BMIBand = "Normal"
	BMIOverweight  BMIBand = "Overweight"
	BMIObese       BMIBand = "Obese"
)

// Derived holds the values computed from an application rather than entered.
type Derived struct {
	TotalMonthlyIncome decimal.Decimal `json:"totalMonthlyIncome"`
	BMI                float64         `json:"bmi,omitempty"`
	BMIBand            BMIBand         `json:"bmiBand,omitempty"`
	CommencementDate   civil.Date      `json:"commencementDate"`
	AgeAtCommencement  int             `json:"ageAtCommencement,omitempty"`
	AgeNextBirthday    int             `json:"ageNextBirthday,omitempty"`
	PolicyTerm         int             `json:"policyTerm,omitempty"`
	PremiumTerm        int             `json:"premiumTerm,omitempty"`
}

// HeightInMetres normalises a height to metres. ok is false when the value or
// unit is missing.
func HeightInMetres(h Height) (decimal.Decimal, bool) {
	if !h.Value.IsPositive() {
		return decimal.Zero, false
	}
	switch h.Unit {
	case HeightUnitCentimetres:
		return h.Value.Div(centimetresPerMetre), true
	case HeightUnitMetres:
		return h.Value, true
	case HeightUnitFeet:
		return h.Value.Mul(metresPerFoot), true
	default:
		return decimal.Zero, false
	}
}

// BodyMassIndex returns weight / height², rounded to one decimal place, and
// its band.
func BodyMassIndex(h Height, weightKg decimal.Decimal) (float64, BMIBand, bool) {
	metres, ok := HeightInMetres(h)
	if !ok || !weightKg.IsPositive() {
		return 0, "", false
	}
	bmi := weightKg.Div(metres.Mul(metres)).Round(1).InexactFloat64()
	return bmi, bandFor(bmi), true
}

func bandFor(bmi float64) BMIBand {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 25:
		return BMINormal
	case bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}

// AgeAt returns completed years between dob and on.
func AgeAt(dob, on civil.Date) int {
	age := on.Year - dob.Year
	if on.Month < dob.Month || (on.Month == dob.Month && on.Day < dob.Day) {
		age--
	}
	return age
}

// derive computes whatever the present inputs allow. Issues are raised only
// for inputs that are present but lead to impossible terms.
func derive(ctx context.Context, app *Application) (Derived, []Issue) {
	var (
		d      Derived
		issues []Issue
	)
	d.TotalMonthlyIncome = app.Income.BasicMonthly.Add(app.Income.OtherMonthly)

	person := app.LifeInsured
	if metres, ok := HeightInMetres(person.Height); ok {
		m := metres.InexactFloat64()
		if m < minPlausibleHeightM || m > maxPlausibleHeightM {
			issues = append(issues, Issue{Path: "lifeInsured.height.value", Message: "is outside the plausible range for the selected unit"})
		} else if bmi, band, ok := BodyMassIndex(person.Height, person.WeightKg); ok {
			d.BMI, d.BMIBand = bmi, band
		}
	}

	d.CommencementDate = civil.DateOf(requestcontext.Now(ctx))
	if app.Coverage.CommencementDate.IsSet() {
		d.CommencementDate = app.Coverage.CommencementDate.Date
	}

	dob := person.DateOfBirth
	if !dob.IsSet() {
		return d, issues
	}
	if !dob.Before(d.CommencementDate) {
		issues = append(issues, Issue{Path: "lifeInsured.dateOfBirth", Message: "must be before the commencement date"})
		return d, issues
	}
	age := AgeAt(dob.Date, d.CommencementDate)
	d.AgeAtCommencement = age
	d.AgeNextBirthday = age + 1
	d.PolicyTerm = policyTermCeiling - age
	d.PremiumTerm = premiumTermCeiling - age
	if d.PremiumTerm <= 0 {
		issues = append(issues, Issue{
			Path:    "lifeInsured.dateOfBirth",
			Message: fmt.Sprintf("life insured must be younger than %d at commencement", premiumTermCeiling),
		})
	}
	if t := app.Coverage.PolicyTerm; t != nil && *t != d.PolicyTerm {
		issues = append(issues, Issue{
			Path:    "coverage.policyTerm",
			Message: fmt.Sprintf("must equal %d minus age at commencement (%d)", policyTermCeiling, d.PolicyTerm),
		})
	}
	if t := app.Coverage.PremiumTerm; t != nil && *t != d.PremiumTerm {
		issues = append(issues, Issue{
			Path:    "coverage.premiumTerm",
			Message: fmt.Sprintf("must equal %d minus age at commencement (%d)", premiumTermCeiling, d.PremiumTerm),
		})
	}
	return d, issues
}

// beneficiaryWarnings flags beneficiary groups whose shares do not total 100%.
func beneficiaryWarnings(app *Application) []Warning {
	var out []Warning
	check := func(path string, group []Beneficiary) {
		if len(group) == 0 {
			return
		}
		total := decimal.Zero
		for _, b := range group {
			total = total.Add(b.Percentage)
		}
		if !total.Equal(hundredPercent) {
			out = append(out, Warning{Path: path, Message: fmt.Sprintf("shares total %s%%, expected 100%%", total.String())})
		}
	}
	check("primaryBeneficiaries", app.PrimaryBeneficiaries)
	check("contingentBeneficiaries", app.ContingentBeneficiaries)
	return out
}
