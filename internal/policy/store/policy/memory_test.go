package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	"policydesk/pkg/platform/sentinel"
)

type PolicyStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *PolicyStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestPolicyStoreSuite(t *testing.T) {
	suite.Run(t, new(PolicyStoreSuite))
}

func (s *PolicyStoreSuite) newPolicy(serial string, status models.OnboardingStatus) *models.Policy {
	actor := models.Actor{UserID: "bd-1", Department: id.DepartmentBusinessDevelopment}
	p, err := models.NewPolicy(serial, intake.Application{}, intake.Derived{}, status, actor, time.Now())
	s.Require().NoError(err)
	return p
}

func (s *PolicyStoreSuite) TestCreationAndLookups() {
	s.Run("assigns sequential ids at version 1", func() {
		first := s.newPolicy("S1", models.StatusPendingVetting)
		second := s.newPolicy("S2", models.StatusIncompletePolicy)
		s.Require().NoError(s.store.Create(s.ctx, first))
		s.Require().NoError(s.store.Create(s.ctx, second))
		s.Equal(id.PolicyID(1), first.ID)
		s.Equal(id.PolicyID(2), second.ID)
		s.Equal(int64(1), second.Version)

		found, err := s.store.FindByID(s.ctx, second.ID)
		s.Require().NoError(err)
		s.Equal("S2", found.SerialNumber)

		bySerial, err := s.store.FindBySerial(s.ctx, "S1")
		s.Require().NoError(err)
		s.Equal(first.ID, bySerial.ID)
	})

	s.Run("returns ErrNotFound for unknown records", func() {
		_, err := s.store.FindByID(s.ctx, id.PolicyID(999))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindBySerial(s.ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate serial numbers", func() {
		err := s.store.Create(s.ctx, s.newPolicy("S1", models.StatusPendingVetting))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
		exists, err := s.store.SerialExists(s.ctx, "S1")
		s.Require().NoError(err)
		s.True(exists)
	})

	s.Run("returned records are copies", func() {
		found, err := s.store.FindByID(s.ctx, id.PolicyID(1))
		s.Require().NoError(err)
		found.OnboardingStatus = models.StatusDeclined
		again, err := s.store.FindByID(s.ctx, id.PolicyID(1))
		s.Require().NoError(err)
		s.Equal(models.StatusPendingVetting, again.OnboardingStatus)
	})
}

func (s *PolicyStoreSuite) TestList() {
	s.Require().NoError(s.store.Create(s.ctx, s.newPolicy("S1", models.StatusPendingVetting)))
	s.Require().NoError(s.store.Create(s.ctx, s.newPolicy("S2", models.StatusIncompletePolicy)))
	s.Require().NoError(s.store.Create(s.ctx, s.newPolicy("S3", models.StatusPendingVetting)))

	all, err := s.store.List(s.ctx, ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)

	vetting, err := s.store.List(s.ctx, ListFilter{Status: models.StatusPendingVetting})
	s.Require().NoError(err)
	s.Require().Len(vetting, 2)
	s.Equal("S1", vetting[0].SerialNumber)
	s.Equal("S3", vetting[1].SerialNumber)

	limited, err := s.store.List(s.ctx, ListFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *PolicyStoreSuite) TestExecute() {
	p := s.newPolicy("S1", models.StatusPendingVetting)
	s.Require().NoError(s.store.Create(s.ctx, p))

	s.Run("applies mutation and bumps version", func() {
		updated, err := s.store.Execute(s.ctx, p.ID,
			func(*models.Policy) error { return nil },
			func(p *models.Policy) { p.ReworkNotes = "updated" },
		)
		s.Require().NoError(err)
		s.Equal(int64(2), updated.Version)
		s.Equal("updated", updated.ReworkNotes)
	})

	s.Run("validation failure leaves record untouched", func() {
		boom := errors.New("rejected")
		_, err := s.store.Execute(s.ctx, p.ID,
			func(*models.Policy) error { return boom },
			func(p *models.Policy) { p.ReworkNotes = "should not apply" },
		)
		s.Require().ErrorIs(err, boom)
		found, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("updated", found.ReworkNotes)
		s.Equal(int64(2), found.Version)
	})

	s.Run("unknown id", func() {
		_, err := s.store.Execute(s.ctx, id.PolicyID(42),
			func(*models.Policy) error { return nil }, func(*models.Policy) {})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("policy numbers are unique", func() {
		other := s.newPolicy("S2", models.StatusPendingVetting)
		s.Require().NoError(s.store.Create(s.ctx, other))
		_, err := s.store.Execute(s.ctx, p.ID,
			func(*models.Policy) error { return nil },
			func(p *models.Policy) { p.PolicyNumber = "T0000001" })
		s.Require().NoError(err)
		_, err = s.store.Execute(s.ctx, other.ID,
			func(*models.Policy) error { return nil },
			func(p *models.Policy) { p.PolicyNumber = "T0000001" })
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

// TestConcurrentExecute verifies no update is lost when many writers append
// to the same record.
func (s *PolicyStoreSuite) TestConcurrentExecute() {
	p := s.newPolicy("S1", models.StatusPendingVetting)
	s.Require().NoError(s.store.Create(s.ctx, p))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.Execute(s.ctx, p.ID,
				func(*models.Policy) error { return nil },
				func(p *models.Policy) {
					p.Payments = append(p.Payments, models.Payment{ID: fmt.Sprintf("pay-%d", i)})
				})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(found.Payments, writers)
	s.Equal(int64(writers+1), found.Version)
}
