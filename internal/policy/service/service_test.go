package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks PolicyStore,SerialAllocator,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"policydesk/internal/audit"
	"policydesk/internal/intake"
	"policydesk/internal/intake/intaketest"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/service/mocks"
	policystore "policydesk/internal/policy/store/policy"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/platform/sentinel"
	"policydesk/pkg/requestcontext"
)

var testNow = time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staffContext(department id.Department) context.Context {
	ctx := requestcontext.WithTime(context.Background(), testNow)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	return requestcontext.WithActor(ctx, requestcontext.StaffActor{
		UserID:     string(department) + "-1",
		Name:       "Staff " + department.Label(),
		Department: department,
	})
}

type ServiceSuite struct {
	suite.Suite
	ctrl               *gomock.Controller
	mockPolicies       *mocks.MockPolicyStore
	mockSerials        *mocks.MockSerialAllocator
	mockAuditPublisher *mocks.MockAuditPublisher
	service            *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockPolicies = mocks.NewMockPolicyStore(s.ctrl)
	s.mockSerials = mocks.NewMockSerialAllocator(s.ctrl)
	s.mockAuditPublisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = New(s.mockPolicies, s.mockSerials,
		WithLogger(discardLogger()),
		WithAuditPublisher(s.mockAuditPublisher),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestCreatePolicy() {
	s.Run("skips serials already on record", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		gomock.InOrder(
			s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000001", nil),
			s.mockPolicies.EXPECT().SerialExists(gomock.Any(), "SN0000001").Return(true, nil),
			s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000002", nil),
			s.mockPolicies.EXPECT().SerialExists(gomock.Any(), "SN0000002").Return(false, nil),
		)
		s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p *models.Policy) error {
				p.ID = 7
				return nil
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(audit.ActionPolicyCreated, event.Action)
				s.Equal(int64(7), event.PolicyID)
				s.Equal("req-1", event.RequestID)
				return nil
			})

		res, err := s.service.CreatePolicy(ctx, intaketest.ValidPayload(), CreateOptions{Submit: true})
		s.Require().NoError(err)
		s.Equal("SN0000002", res.Policy.SerialNumber)
		s.Equal("SN0000002", res.Policy.Application.SerialNumber)
		s.Equal(models.StatusPendingVetting, res.Policy.OnboardingStatus)
	})

	s.Run("retries when the store reports a serial collision", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000003", nil)
		s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000004", nil)
		s.mockPolicies.EXPECT().SerialExists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
		gomock.InOrder(
			s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed),
			s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
		)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		res, err := s.service.CreatePolicy(ctx, intaketest.ValidPayload(), CreateOptions{Submit: true})
		s.Require().NoError(err)
		s.Equal("SN0000004", res.Policy.SerialNumber)
	})

	s.Run("audit publish failure does not fail the request", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000005", nil)
		s.mockPolicies.EXPECT().SerialExists(gomock.Any(), "SN0000005").Return(false, nil)
		s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		_, err := s.service.CreatePolicy(ctx, intaketest.ValidPayload(), CreateOptions{})
		s.Require().NoError(err)
	})

	s.Run("allocator failure is internal", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		s.mockSerials.EXPECT().Next(gomock.Any()).Return("", errors.New("redis unavailable"))

		_, err := s.service.CreatePolicy(ctx, intaketest.ValidPayload(), CreateOptions{Submit: true})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("invalid application never reaches the store", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		p := intaketest.ValidPayload()
		delete(p, "signatures")

		_, err := s.service.CreatePolicy(ctx, p, CreateOptions{Submit: true})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		var verr *intake.ValidationError
		s.Require().True(errors.As(err, &verr))
		s.True(verr.HasPath("signatures.lifeInsured"))
	})

	s.Run("requires an authenticated business development actor", func() {
		_, err := s.service.CreatePolicy(context.Background(), intaketest.ValidPayload(), CreateOptions{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = s.service.CreatePolicy(staffContext(id.DepartmentUnderwriting), intaketest.ValidPayload(), CreateOptions{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestStoreErrorsAreTranslated() {
	ctx := staffContext(id.DepartmentUnderwriting)

	s.Run("missing policy id is a bad request", func() {
		_, err := s.service.GetPolicy(ctx, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown policy is not found", func() {
		s.mockPolicies.EXPECT().FindByID(gomock.Any(), id.PolicyID(42)).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.GetPolicy(ctx, 42)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("version clash is a conflict", func() {
		s.mockPolicies.EXPECT().Execute(gomock.Any(), id.PolicyID(42), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrConflict)

		_, err := s.service.Transition(ctx, 42, TransitionRequest{Event: "vetting_passed"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reused policy number is a conflict", func() {
		s.mockPolicies.EXPECT().Execute(gomock.Any(), id.PolicyID(42), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrAlreadyUsed)

		_, err := s.service.Transition(ctx, 42, TransitionRequest{Event: "vetting_passed"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown event is rejected before loading", func() {
		_, err := s.service.Transition(ctx, 42, TransitionRequest{Event: "approve"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unexpected store failure is internal", func() {
		s.mockPolicies.EXPECT().List(gomock.Any(), policystore.ListFilter{}).Return(nil, errors.New("connection reset"))

		_, err := s.service.ListPolicies(ctx, policystore.ListFilter{})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("unknown status filter is a bad request", func() {
		_, err := s.service.ListPolicies(ctx, policystore.ListFilter{Status: "Approved"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestImportBatchSurvivesStoreFailure() {
	s.Run("a row the store rejects is reported and the batch continues", func() {
		ctx := staffContext(id.DepartmentBusinessDevelopment)
		gomock.InOrder(
			s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000001", nil),
			s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000002", nil),
			s.mockSerials.EXPECT().Next(gomock.Any()).Return("SN0000003", nil),
		)
		s.mockPolicies.EXPECT().SerialExists(gomock.Any(), gomock.Any()).Return(false, nil).Times(3)
		gomock.InOrder(
			s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, p *models.Policy) error {
					p.ID = 1
					return nil
				}),
			s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")),
			s.mockPolicies.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, p *models.Policy) error {
					p.ID = 3
					return nil
				}),
		)
		var actions []string
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				actions = append(actions, event.Action)
				return nil
			}).Times(3)

		rows := []intake.Payload{intaketest.ValidPayload(), intaketest.ValidPayload(), intaketest.ValidPayload()}
		report, err := s.service.ImportBatch(ctx, rows)
		s.Require().NoError(err)

		s.Equal(2, report.SuccessCount)
		s.Equal(1, report.FailureCount)
		s.Require().Len(report.Rows, 3)
		s.True(report.Rows[0].OK)
		s.Equal(id.PolicyID(1), report.Rows[0].PolicyID)
		s.False(report.Rows[1].OK)
		s.Equal("could not be saved: internal", report.Rows[1].Error)
		s.Empty(report.Rows[1].Issues)
		s.True(report.Rows[2].OK)
		s.Equal(id.PolicyID(3), report.Rows[2].PolicyID)
		s.Equal("SN0000003", report.Rows[2].SerialNumber)
		s.Equal([]string{audit.ActionPolicyCreated, audit.ActionPolicyCreated, audit.ActionBatchImported}, actions)
	})

	s.Run("rows after cancellation are not attempted", func() {
		ctx, cancel := context.WithCancel(staffContext(id.DepartmentBusinessDevelopment))
		cancel()
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		report, err := s.service.ImportBatch(ctx, []intake.Payload{intaketest.ValidPayload(), intaketest.ValidPayload()})
		s.Require().NoError(err)
		s.Equal(0, report.SuccessCount)
		s.Equal(2, report.FailureCount)
		s.Contains(report.Rows[1].Error, "not attempted")
	})
}
