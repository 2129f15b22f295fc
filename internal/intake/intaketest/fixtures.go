// Package intaketest provides application payload fixtures for tests.
package intaketest

import "policydesk/internal/intake"

// ValidPayload returns a fresh application payload that passes full
// validation. Every disclosure is answered "no"; the life insured is 175 cm,
// 80 kg and 35 at the 2025-07-01 commencement.
func ValidPayload() intake.Payload {
	p := intake.Payload{
		"lifeInsured": map[string]any{
			"title":              "Mrs",
			"firstName":          "Ama",
			"lastName":           "Mensah",
			"dateOfBirth":        "1990-06-15",
			"gender":             "female",
			"maritalStatus":      "married",
			"nationality":        "Ghanaian",
			"occupation":         "Teacher",
			"telephone":          "241234567",
			"email":              "ama.mensah@example.com",
			"residentialAddress": "12 Ring Road, Accra",
			"identification":     map[string]any{"type": "ghana_card", "number": "GHA-123456789-0"},
			"height":             map[string]any{"value": 175, "unit": "cm"},
			"weightKg":           80,
		},
		"income": map[string]any{
			"basicMonthly": "3500.00",
			"otherMonthly": "500.00",
		},
		"isPolicyHolderPayer": true,
		"coverage": map[string]any{
			"contractType":     "whole_life",
			"sumAssured":       "50000",
			"premium":          "150.00",
			"paymentFrequency": "monthly",
			"paymentMethod":    "cash",
			"commencementDate": "2025-07-01",
		},
		"primaryBeneficiaries": []any{
			map[string]any{
				"name":         "Kofi Mensah",
				"dateOfBirth":  "2015-02-01",
				"gender":       "male",
				"relationship": "son",
				"percentage":   100,
			},
		},
		"lifestyle": map[string]any{
			"alcohol": map[string]any{"habit": "never"},
			"tobacco": map[string]any{"usedNicotineLast12Months": "no"},
		},
		"viralInfection": map[string]any{
			"testedPositiveViralInfection": "no",
		},
		"signatures": map[string]any{
			"lifeInsured": "sig://life-insured/1",
			"policyOwner": "sig://policy-owner/1",
		},
	}
	for _, pair := range intake.DisclosurePairs() {
		p[pair.Flag()] = "no"
	}
	return p
}

// ValidDetail returns a detail entry that satisfies the given shape.
func ValidDetail(shape intake.DetailShape) map[string]any {
	switch shape {
	case intake.ShapeMedical:
		return map[string]any{"condition": "Hypertension", "diagnosedOn": "2019-03-01", "ongoing": true}
	case intake.ShapePolicy:
		return map[string]any{"insurer": "Star Life", "policyNumber": "SL-88", "sumAssured": "10000"}
	case intake.ShapeAviation:
		return map[string]any{"aircraftType": "Cessna 172", "hoursPerYear": 40}
	case intake.ShapeActivity:
		return map[string]any{"activity": "Scuba diving", "frequency": "monthly"}
	case intake.ShapeTravel:
		return map[string]any{"destination": "Lagos", "durationMonths": 4}
	case intake.ShapeFamily:
		return map[string]any{"relationship": "father", "condition": "diabetes", "ageAtOnset": 50}
	default:
		return map[string]any{}
	}
}

// Section returns the named nested object of p, for in-place edits.
func Section(p intake.Payload, key string) map[string]any {
	return p[key].(map[string]any)
}
