package intake

import "fmt"

// refine applies the cross-field rules that struct tags cannot express.
func (v *Validator) refine(app *Application) []Issue {
	var issues []Issue
	issues = append(issues, v.disclosureIssues(app.Disclosures)...)

	if !app.PayerIsHolder() {
		if app.Payer == nil {
			for _, f := range []string{"firstName", "lastName", "idType", "idNumber"} {
				issues = append(issues, Issue{Path: "payer." + f, Message: "is required when the policy holder is not the payer"})
			}
		} else {
			issues = append(issues, v.structIssues(app.Payer, "payer")...)
		}
	}

	vi := app.ViralInfection
	if vi.TestedPositive.IsYes() && !vi.TestedPositiveFor.any() && !vi.AwaitingResultsFor.any() {
		issues = append(issues, Issue{
			Path:    "viralInfection.testedPositiveViralInfection",
			Message: "select at least one infection tested positive for or awaiting results for",
		})
	}

	alcohol := app.Lifestyle.Alcohol
	if (alcohol.Habit == AlcoholOccasional || alcohol.Habit == AlcoholRegular) && !alcohol.anyBeverage() {
		issues = append(issues, Issue{Path: "lifestyle.alcohol.habit", Message: "select at least one beverage type"})
	}

	tobacco := app.Lifestyle.Tobacco
	if tobacco.UsedNicotineLast12Months.IsYes() && !tobacco.anyProduct() {
		issues = append(issues, Issue{
			Path:    "lifestyle.tobacco.usedNicotineLast12Months",
			Message: "select at least one tobacco or nicotine product",
		})
	}

	if app.Coverage.PaymentMethod == PaymentMethodDebitOrder && app.Signatures.PaymentAuthority == "" {
		issues = append(issues, Issue{Path: "signatures.paymentAuthority", Message: "is required for debit order payments"})
	}
	return issues
}

// disclosureIssues enforces the pairing table: every flag answered, and a
// "yes" carries at least one valid detail entry. Details under a "no" are
// ignored.
func (v *Validator) disclosureIssues(ds Disclosures) []Issue {
	var issues []Issue
	for _, p := range disclosurePairs {
		d, ok := ds[p.Kind]
		switch {
		case !ok || d.Answer == "":
			issues = append(issues, Issue{Path: p.Flag(), Message: "is required"})
		case d.Answer != AnswerYes && d.Answer != AnswerNo:
			issues = append(issues, Issue{Path: p.Flag(), Message: "must be yes or no"})
		case d.Answer == AnswerYes && len(d.Details) == 0:
			issues = append(issues, Issue{Path: p.Flag(), Message: "details required when answered yes"})
		case d.Answer == AnswerYes:
			for i, detail := range d.Details {
				issues = append(issues, v.structIssues(detail, fmt.Sprintf("%s[%d]", p.DetailsField, i))...)
			}
		}
	}
	return issues
}
