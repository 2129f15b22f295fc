package models_test

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
)

type LifecycleSuite struct {
	suite.Suite
	now time.Time
	bd  models.Actor
	pa  models.Actor
	uw  models.Actor
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.now = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	s.bd = models.Actor{UserID: "bd-1", Name: "Kofi", Department: id.DepartmentBusinessDevelopment}
	s.pa = models.Actor{UserID: "pa-1", Name: "Efua", Department: id.DepartmentPremiumAdministration}
	s.uw = models.Actor{UserID: "uw-1", Name: "Yaw", Department: id.DepartmentUnderwriting}
}

func (s *LifecycleSuite) policyIn(status models.OnboardingStatus) *models.Policy {
	p, err := models.NewPolicy("S000001", intake.Application{}, intake.Derived{}, models.StatusPendingVetting, s.bd, s.now)
	s.Require().NoError(err)
	p.OnboardingStatus = status
	return p
}

func (s *LifecycleSuite) actorFor(event models.Event) models.Actor {
	switch event {
	case models.EventSubmit, models.EventRequestFirstPremium:
		return s.bd
	case models.EventRequestMandate, models.EventConfirmFirstPremium:
		return s.pa
	default:
		return s.uw
	}
}

func (s *LifecycleSuite) contextFor(event models.Event) models.TransitionContext {
	return models.TransitionContext{
		Actor:     s.actorFor(event),
		Remarks:   "see notes",
		Validated: &intake.Result{},
		Terms: &models.AcceptanceTerms{
			PolicyNumber: "T9999999",
			Premium:      decimal.RequireFromString("200.00"),
			SumAssured:   decimal.NewFromInt(50000),
		},
	}
}

func (s *LifecycleSuite) TestNewPolicy() {
	s.Run("starts inactive and outstanding with one activity entry", func() {
		p, err := models.NewPolicy("S000001", intake.Application{}, intake.Derived{}, models.StatusPendingVetting, s.bd, s.now)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingVetting, p.OnboardingStatus)
		s.Equal(models.BillingOutstanding, p.BillingStatus)
		s.Equal(models.PolicyInactive, p.PolicyStatus)
		s.Equal("S000001", p.Application.SerialNumber)
		s.Require().Len(p.Activity, 1)
		s.Equal("Kofi", p.Activity[0].User)
	})

	s.Run("rejects other starting statuses", func() {
		_, err := models.NewPolicy("S000001", intake.Application{}, intake.Derived{}, models.StatusAccepted, s.bd, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects empty serial", func() {
		_, err := models.NewPolicy("", intake.Application{}, intake.Derived{}, models.StatusIncompletePolicy, s.bd, s.now)
		s.Require().Error(err)
	})
}

func (s *LifecycleSuite) TestTable() {
	expected := map[models.OnboardingStatus]map[models.Event]models.OnboardingStatus{
		models.StatusIncompletePolicy: {
			models.EventSubmit:              models.StatusPendingVetting,
			models.EventRequestFirstPremium: models.StatusPendingFirstPremium,
			models.EventMandateVerified:     models.StatusMandateVerified,
			models.EventMandateFailed:       models.StatusMandateReworkRequired,
		},
		models.StatusPendingFirstPremium: {
			models.EventConfirmFirstPremium: models.StatusPendingVetting,
			models.EventMandateVerified:     models.StatusMandateVerified,
			models.EventMandateFailed:       models.StatusMandateReworkRequired,
		},
		models.StatusPendingVetting: {
			models.EventVettingPassed:   models.StatusVettingCompleted,
			models.EventVettingFailed:   models.StatusReworkRequired,
			models.EventMandateVerified: models.StatusMandateVerified,
			models.EventMandateFailed:   models.StatusMandateReworkRequired,
		},
		models.StatusReworkRequired: {
			models.EventSubmit:          models.StatusPendingVetting,
			models.EventMandateVerified: models.StatusMandateVerified,
			models.EventMandateFailed:   models.StatusMandateReworkRequired,
		},
		models.StatusVettingCompleted: {
			models.EventRequestMandate:      models.StatusPendingMandate,
			models.EventMandateVerified:     models.StatusMandateVerified,
			models.EventMandateFailed:       models.StatusMandateReworkRequired,
			models.EventConfirmFirstPremium: models.StatusFirstPremiumConfirmed,
		},
		models.StatusPendingMandate: {
			models.EventMandateVerified: models.StatusMandateVerified,
			models.EventMandateFailed:   models.StatusMandateReworkRequired,
		},
		models.StatusMandateReworkRequired: {
			models.EventRequestMandate:  models.StatusPendingMandate,
			models.EventMandateVerified: models.StatusMandateVerified,
			models.EventMandateFailed:   models.StatusMandateReworkRequired,
		},
		models.StatusMandateVerified: {
			models.EventSubmit:              models.StatusPendingVetting,
			models.EventConfirmFirstPremium: models.StatusFirstPremiumConfirmed,
		},
		models.StatusFirstPremiumConfirmed: {
			models.EventStartMedicals: models.StatusPendingMedicals,
		},
		models.StatusPendingMedicals: {
			models.EventCompleteMedicals: models.StatusMedicalsCompleted,
		},
		models.StatusMedicalsCompleted: {
			models.EventReferForDecision: models.StatusPendingDecision,
			models.EventAccept:           models.StatusAccepted,
			models.EventDefer:            models.StatusNTU,
			models.EventDecline:          models.StatusDeclined,
		},
		models.StatusPendingDecision: {
			models.EventAccept:  models.StatusAccepted,
			models.EventDefer:   models.StatusNTU,
			models.EventDecline: models.StatusDeclined,
		},
		models.StatusNTU: {
			models.EventRevert: models.StatusPendingMedicals,
		},
	}

	for _, from := range models.OnboardingStatuses {
		for _, event := range models.Events() {
			want, listed := expected[from][event]
			got, ok := models.LookupTransition(from, event)
			s.Equal(listed, ok, "%s from %s", event, from)
			if listed {
				s.Equal(want, got, "%s from %s", event, from)
			}
		}
	}
}

func (s *LifecycleSuite) TestUnlistedPairsAreRejected() {
	for _, from := range models.OnboardingStatuses {
		for _, event := range models.Events() {
			if models.CanTransition(from, event) {
				continue
			}
			p := s.policyIn(from)
			activity := len(p.Activity)
			err := p.Transition(event, s.contextFor(event), s.now)
			s.Require().Error(err, "%s from %s", event, from)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "%s from %s", event, from)
			var te *models.TransitionError
			s.Require().ErrorAs(err, &te)
			s.Equal(from, te.From)
			s.Equal(from, p.OnboardingStatus)
			s.Len(p.Activity, activity)
		}
	}
}

func (s *LifecycleSuite) TestHappyPathReachesAccepted() {
	p := s.policyIn(models.StatusPendingVetting)
	p.Payments = append(p.Payments, models.Payment{ID: "pay-1", Amount: decimal.NewFromInt(150)})

	for _, event := range []models.Event{
		models.EventVettingPassed,
		models.EventMandateVerified,
		models.EventConfirmFirstPremium,
		models.EventStartMedicals,
		models.EventCompleteMedicals,
		models.EventAccept,
	} {
		s.Require().NoError(p.Transition(event, s.contextFor(event), s.now), string(event))
	}

	s.Equal(models.StatusAccepted, p.OnboardingStatus)
	s.Equal(models.PolicyActive, p.PolicyStatus)
	s.Equal("T9999999", p.PolicyNumber)
	s.True(p.FinalPremium.Equal(decimal.RequireFromString("200.00")))
	s.True(p.FinalSumAssured.Equal(decimal.NewFromInt(50000)))
	s.Require().NotNil(p.CommencementDate)
	s.Equal(civil.DateOf(s.now), *p.CommencementDate)
	s.True(p.MandateVerified)
	s.True(p.FirstPremiumPaid)
	s.True(p.MedicalUnderwriting.Started)
	s.True(p.MedicalUnderwriting.Completed)
	s.Len(p.Activity, 7)
	last, ok := p.LastActivity()
	s.Require().True(ok)
	s.Equal("Policy accepted", last.Action)
	s.Equal("Yaw", last.User)
	s.Equal(id.DepartmentUnderwriting, last.Department)
}

func (s *LifecycleSuite) TestDepartmentPermissions() {
	s.Run("vetting is underwriting only", func() {
		p := s.policyIn(models.StatusPendingVetting)
		err := p.Transition(models.EventVettingPassed, models.TransitionContext{Actor: s.bd}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(models.StatusPendingVetting, p.OnboardingStatus)
	})

	s.Run("mandate verification accepts premium administration and underwriting", func() {
		for _, actor := range []models.Actor{s.pa, s.uw} {
			p := s.policyIn(models.StatusPendingMandate)
			s.Require().NoError(p.Transition(models.EventMandateVerified, models.TransitionContext{Actor: actor}, s.now))
		}
		p := s.policyIn(models.StatusPendingMandate)
		s.Require().Error(p.Transition(models.EventMandateVerified, models.TransitionContext{Actor: s.bd}, s.now))
	})

	s.Run("available events are filtered by department", func() {
		s.Equal([]models.Event{models.EventRequestMandate},
			models.AvailableEvents(models.StatusVettingCompleted, id.DepartmentBusinessDevelopment))
		s.Equal([]models.Event{models.EventRequestMandate, models.EventMandateVerified, models.EventMandateFailed, models.EventConfirmFirstPremium},
			models.AvailableEvents(models.StatusVettingCompleted, id.DepartmentPremiumAdministration))
		s.Equal([]models.Event{models.EventRevert},
			models.AvailableEvents(models.StatusNTU, ""))
		s.Empty(models.AvailableEvents(models.StatusAccepted, id.DepartmentUnderwriting))
		s.Empty(models.AvailableEvents(models.StatusDeclined, ""))
	})
}

func (s *LifecycleSuite) TestGuards() {
	s.Run("failure events require remarks", func() {
		p := s.policyIn(models.StatusPendingVetting)
		err := p.Transition(models.EventVettingFailed, models.TransitionContext{Actor: s.uw, Remarks: "  "}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		s.Require().NoError(p.Transition(models.EventVettingFailed, models.TransitionContext{Actor: s.uw, Remarks: "ID copy unreadable"}, s.now))
		s.Equal(models.StatusReworkRequired, p.OnboardingStatus)
		s.Equal("ID copy unreadable", p.ReworkNotes)
		last, _ := p.LastActivity()
		s.Equal("ID copy unreadable", last.Details)
	})

	s.Run("mandate failure records notes", func() {
		p := s.policyIn(models.StatusPendingMandate)
		s.Require().NoError(p.Transition(models.EventMandateFailed, models.TransitionContext{Actor: s.pa, Remarks: "account closed"}, s.now))
		s.Equal("account closed", p.MandateReworkNotes)
		s.False(p.MandateVerified)
	})

	s.Run("submission requires a validated application", func() {
		p := s.policyIn(models.StatusIncompletePolicy)
		err := p.Transition(models.EventSubmit, models.TransitionContext{Actor: s.bd}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		derived := intake.Derived{AgeAtCommencement: 35}
		s.Require().NoError(p.Transition(models.EventSubmit, models.TransitionContext{Actor: s.bd, Validated: &intake.Result{Derived: derived}}, s.now))
		s.Equal(models.StatusPendingVetting, p.OnboardingStatus)
		s.Equal(35, p.Derived.AgeAtCommencement)
	})

	s.Run("first premium cannot be confirmed without a payment", func() {
		p := s.policyIn(models.StatusMandateVerified)
		p.Vetted = true
		err := p.Transition(models.EventConfirmFirstPremium, models.TransitionContext{Actor: s.pa}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("pre-vetting first premium confirmation returns to vetting", func() {
		p := s.policyIn(models.StatusPendingFirstPremium)
		p.Payments = append(p.Payments, models.Payment{ID: "pay-1", Amount: decimal.NewFromInt(150)})
		s.Require().NoError(p.Transition(models.EventConfirmFirstPremium, models.TransitionContext{Actor: s.pa}, s.now))
		s.Equal(models.StatusPendingVetting, p.OnboardingStatus)
		s.Equal(models.BillingFirstPremiumPaid, p.BillingStatus)
	})

	s.Run("acceptance requires every term", func() {
		cases := []*models.AcceptanceTerms{
			nil,
			{Premium: decimal.NewFromInt(200), SumAssured: decimal.NewFromInt(50000)},
			{PolicyNumber: "T9999999", SumAssured: decimal.NewFromInt(50000)},
			{PolicyNumber: "T9999999", Premium: decimal.NewFromInt(200)},
		}
		for _, terms := range cases {
			p := s.policyIn(models.StatusPendingDecision)
			err := p.Transition(models.EventAccept, models.TransitionContext{Actor: s.uw, Terms: terms}, s.now)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			s.Equal(models.PolicyInactive, p.PolicyStatus)
		}
	})

	s.Run("revert restarts medical underwriting", func() {
		p := s.policyIn(models.StatusNTU)
		p.MedicalUnderwriting.Completed = true
		later := s.now.Add(48 * time.Hour)
		s.Require().NoError(p.Transition(models.EventRevert, models.TransitionContext{Actor: s.uw}, later))
		s.Equal(models.StatusPendingMedicals, p.OnboardingStatus)
		s.True(p.MedicalUnderwriting.Started)
		s.False(p.MedicalUnderwriting.Completed)
		s.Require().NotNil(p.MedicalUnderwriting.StartDate)
		s.Equal(later, *p.MedicalUnderwriting.StartDate)
	})
}

func (s *LifecycleSuite) TestMandateBeforeVetting() {
	s.Run("mandate can be recorded from every status before verification", func() {
		for _, from := range []models.OnboardingStatus{
			models.StatusIncompletePolicy,
			models.StatusPendingFirstPremium,
			models.StatusPendingVetting,
			models.StatusVettingCompleted,
			models.StatusReworkRequired,
			models.StatusPendingMandate,
			models.StatusMandateReworkRequired,
		} {
			for _, actor := range []models.Actor{s.pa, s.uw} {
				p := s.policyIn(from)
				s.Require().NoError(p.Transition(models.EventMandateVerified, models.TransitionContext{Actor: actor}, s.now), string(from))
				s.True(p.MandateVerified)

				p = s.policyIn(from)
				s.Require().NoError(p.Transition(models.EventMandateFailed, models.TransitionContext{Actor: actor, Remarks: "wrong branch code"}, s.now), string(from))
				s.Equal(models.StatusMandateReworkRequired, p.OnboardingStatus)
			}
			err := s.policyIn(from).Transition(models.EventMandateVerified, models.TransitionContext{Actor: s.bd}, s.now)
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden), string(from))
		}
		for _, from := range []models.OnboardingStatus{
			models.StatusMandateVerified,
			models.StatusFirstPremiumConfirmed,
			models.StatusPendingMedicals,
			models.StatusAccepted,
		} {
			s.False(models.CanTransition(from, models.EventMandateVerified), string(from))
		}
	})

	s.Run("an early mandate still goes through vetting", func() {
		p := s.policyIn(models.StatusIncompletePolicy)
		p.Payments = append(p.Payments, models.Payment{ID: "pay-1", Amount: decimal.NewFromInt(150)})
		s.Require().NoError(p.Transition(models.EventMandateVerified, models.TransitionContext{Actor: s.pa}, s.now))

		err := p.Transition(models.EventConfirmFirstPremium, models.TransitionContext{Actor: s.pa}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		s.Equal(models.StatusMandateVerified, p.OnboardingStatus)

		s.Require().NoError(p.Transition(models.EventSubmit, s.contextFor(models.EventSubmit), s.now))
		s.Equal(models.StatusPendingVetting, p.OnboardingStatus)
		s.Require().NoError(p.Transition(models.EventVettingPassed, s.contextFor(models.EventVettingPassed), s.now))
		s.True(p.Vetted)
		s.Require().NoError(p.Transition(models.EventConfirmFirstPremium, s.contextFor(models.EventConfirmFirstPremium), s.now))
		s.Equal(models.StatusFirstPremiumConfirmed, p.OnboardingStatus)
		s.True(p.MandateVerified)
	})

	s.Run("a vetted policy cannot be resubmitted", func() {
		p := s.policyIn(models.StatusMandateVerified)
		p.Vetted = true
		err := p.Transition(models.EventSubmit, s.contextFor(models.EventSubmit), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *LifecycleSuite) TestCloneSharesNothing() {
	holderPays := false
	term := 20
	app := intake.Application{
		IsPolicyHolderPayer:  &holderPays,
		Payer:                &intake.Payer{FirstName: "Esi"},
		Coverage:             intake.Coverage{PolicyTerm: &term},
		PrimaryBeneficiaries: []intake.Beneficiary{{Name: "Kwame Mensah"}},
		Disclosures: intake.Disclosures{
			"diabetes": {Answer: intake.AnswerYes, Details: []intake.Detail{&intake.MedicalDetail{Condition: "Type 2"}}},
		},
	}
	p, err := models.NewPolicy("S000001", app, intake.Derived{}, models.StatusIncompletePolicy, s.bd, s.now)
	s.Require().NoError(err)

	c := p.Clone()
	*c.Application.IsPolicyHolderPayer = true
	c.Application.Payer.FirstName = "Abena"
	*c.Application.Coverage.PolicyTerm = 5
	c.Application.PrimaryBeneficiaries[0].Name = "Yaa Mensah"
	c.Application.Disclosures["diabetes"].Details[0].(*intake.MedicalDetail).Condition = "Type 1"
	c.Application.Disclosures["cancer"] = intake.Disclosure{Answer: intake.AnswerNo}

	s.False(*p.Application.IsPolicyHolderPayer)
	s.Equal("Esi", p.Application.Payer.FirstName)
	s.Equal(20, *p.Application.Coverage.PolicyTerm)
	s.Equal("Kwame Mensah", p.Application.PrimaryBeneficiaries[0].Name)
	s.Equal("Type 2", p.Application.Disclosures["diabetes"].Details[0].(*intake.MedicalDetail).Condition)
	s.NotContains(p.Application.Disclosures, intake.DisclosureKind("cancer"))
}

func (s *LifecycleSuite) TestParseEvent() {
	e, err := models.ParseEvent(" accept ")
	s.Require().NoError(err)
	s.Equal(models.EventAccept, e)

	e, err = models.ParseEvent("not_taken_up")
	s.Require().NoError(err)
	s.Equal(models.EventDefer, e)

	_, err = models.ParseEvent("approve")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
