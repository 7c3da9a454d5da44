package billing

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/platinummonkey/workspace-billing/pkg/audit"
	"github.com/platinummonkey/workspace-billing/pkg/auth"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/platinummonkey/workspace-billing/pkg/workspaces"
	"go.opentelemetry.io/otel/attribute"
)

// Authorizer decides whether a user may change billing for a workspace
type Authorizer interface {
	IsAdminWriteForbidden(ws *workspaces.Workspace, user auth.User) bool
}

// WorkspaceStore loads workspaces and owns their customer reference
type WorkspaceStore interface {
	// GetWorkspace returns workspaces.ErrNotFound when id is unknown
	GetWorkspace(ctx context.Context, id string) (*workspaces.Workspace, error)
	ClaimStripeCustomer(ctx context.Context, workspaceID, customerID string) (bool, error)
	ReleaseStripeCustomer(ctx context.Context, workspaceID, customerID string) error
}

// UserStore persists user attributes collected during checkout
type UserStore interface {
	UpdateUserCompany(ctx context.Context, userID, company string) error
}

// CustomerDirectory finds and writes Stripe customers
type CustomerDirectory interface {
	// FindByEmail returns the first customer with email, or nil when there is none
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	Create(ctx context.Context, params CustomerParams) (*Customer, error)
	Update(ctx context.Context, customerID string, params CustomerParams) (*Customer, error)
}

// CheckoutURLBuilder creates a hosted checkout session and returns its URL
type CheckoutURLBuilder interface {
	CheckoutURL(ctx context.Context, params CheckoutURLParams) (string, error)
}

// Provider is the full payment provider surface used by checkout
type Provider interface {
	CustomerDirectory
	CheckoutURLBuilder
}

// CheckoutServiceConfig wires a CheckoutService. A nil Provider means Stripe is
// not configured; a nil Locker disables the per-workspace lock; a nil Audit
// discards audit events.
type CheckoutServiceConfig struct {
	Workspaces WorkspaceStore
	Users      UserStore
	Authorizer Authorizer
	Provider   Provider
	Locker     Locker
	LockTTL    time.Duration
	Metrics    *observability.Metrics
	Audit      audit.Logger
}

// CheckoutService initiates subscription checkouts
type CheckoutService struct {
	workspaces WorkspaceStore
	users      UserStore
	authorizer Authorizer
	provider   Provider
	locker     Locker
	lockTTL    time.Duration
	metrics    *observability.Metrics
	audit      audit.Logger
	validate   *validator.Validate
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(cfg CheckoutServiceConfig) *CheckoutService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOpLogger{}
	}
	return &CheckoutService{
		workspaces: cfg.Workspaces,
		users:      cfg.Users,
		authorizer: cfg.Authorizer,
		provider:   cfg.Provider,
		locker:     cfg.Locker,
		lockTTL:    cfg.LockTTL,
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Configured reports whether a payment provider is wired in
func (s *CheckoutService) Configured() bool {
	return s.provider != nil
}

// CreateCheckoutSession provisions a Stripe customer for the workspace and
// returns a hosted checkout URL. All failures are *Error values.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (session *CheckoutSession, err error) {
	if req == nil {
		return nil, newError(CodeValidationFailed, "checkout request is required", nil)
	}

	ctx, span := observability.StartSpan(ctx, "billing.CreateCheckoutSession",
		attribute.String("workspace.id", req.WorkspaceID),
		attribute.String("billing.plan", string(req.Plan)),
	)
	start := time.Now()
	defer func() {
		s.observe(ctx, req, start, err)
		observability.EndSpan(span, err)
	}()

	if !s.Configured() {
		if s.metrics != nil {
			s.metrics.BillingMisconfigured.Inc()
		}
		return nil, newError(CodeConfigurationMissing, MsgStripeNotConfigured, nil)
	}

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ws, err := s.loadWorkspace(ctx, req)
	if err != nil {
		return nil, err
	}

	if ws.HasCustomer() {
		return nil, newError(CodeAlreadyExists, MsgCustomerExists, nil)
	}

	unlock, err := s.lock(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.users.UpdateUserCompany(ctx, req.User.ID, req.Company); err != nil {
		return nil, internalError(err)
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	claimed, err := s.workspaces.ClaimStripeCustomer(ctx, ws.ID, customer.ID)
	if err != nil {
		return nil, internalError(err)
	}
	if !claimed {
		return nil, newError(CodeAlreadyExists, MsgCustomerExists, nil)
	}

	url, err := s.checkoutURL(ctx, req, customer.ID)
	if err != nil {
		s.releaseClaim(ctx, ws.ID, customer.ID)
		return nil, err
	}

	return &CheckoutSession{CheckoutURL: url}, nil
}

func (s *CheckoutService) validateRequest(req *CheckoutRequest) error {
	if req.User.ID == "" || req.User.Email == "" {
		return newError(CodeValidationFailed, "an authenticated user with an email is required", nil)
	}
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return newError(CodeValidationFailed, describeFieldError(fieldErrs[0]), err)
		}
		return newError(CodeValidationFailed, "invalid checkout request", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := jsonFieldNames[fe.Field()]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "url":
		return field + " must be a valid URL"
	case "email":
		return field + " must be a valid email address"
	default:
		return field + " is invalid"
	}
}

var jsonFieldNames = map[string]string{
	"WorkspaceID": "workspaceId",
	"ReturnURL":   "returnUrl",
	"Email":       "email",
	"Company":     "company",
	"Plan":        "plan",
	"Currency":    "currency",
}

// loadWorkspace conflates missing and forbidden workspaces into NOT_FOUND
func (s *CheckoutService) loadWorkspace(ctx context.Context, req *CheckoutRequest) (*workspaces.Workspace, error) {
	ws, err := s.workspaces.GetWorkspace(ctx, req.WorkspaceID)
	if errors.Is(err, workspaces.ErrNotFound) {
		return nil, newError(CodeNotFound, MsgWorkspaceNotFound, nil)
	}
	if err != nil {
		return nil, internalError(err)
	}
	if s.authorizer.IsAdminWriteForbidden(ws, req.User) {
		return nil, newError(CodeNotFound, MsgWorkspaceNotFound, nil)
	}
	return ws, nil
}

func (s *CheckoutService) lock(ctx context.Context, workspaceID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	unlock, err := s.locker.TryLock(ctx, workspaceID, s.lockTTL)
	if errors.Is(err, ErrLockHeld) {
		if s.metrics != nil {
			s.metrics.CheckoutLockContention.Inc()
		}
		return nil, newError(CodeAlreadyExists, MsgCheckoutInProgress, nil)
	}
	if err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("workspace_id", workspaceID).
			Warn("checkout lock unavailable, continuing without it")
		return noop, nil
	}

	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			observability.FromContext(ctx).WithError(err).
				WithField("workspace_id", workspaceID).
				Warn("failed to release checkout lock")
		}
	}, nil
}

func (s *CheckoutService) resolveCustomer(ctx context.Context, req *CheckoutRequest) (customer *Customer, err error) {
	ctx, span := observability.StartSpan(ctx, "billing.resolveCustomer")
	defer func() { observability.EndSpan(span, err) }()

	existing, err := s.provider.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, internalError(err)
	}

	if existing != nil && existing.Email != req.User.Email {
		return nil, newError(CodeValidationFailed, MsgEmailMismatch, nil)
	}

	params := CustomerParams{
		Email:       req.Email,
		Name:        req.Company,
		WorkspaceID: req.WorkspaceID,
		VAT:         req.VAT,
	}

	if existing != nil {
		customer, err = s.provider.Update(ctx, existing.ID, params)
	} else {
		customer, err = s.provider.Create(ctx, params)
	}
	if err != nil {
		return nil, internalError(err)
	}

	return customer, nil
}

func (s *CheckoutService) checkoutURL(ctx context.Context, req *CheckoutRequest, customerID string) (string, error) {
	url, err := s.provider.CheckoutURL(ctx, CheckoutURLParams{
		CustomerID:  customerID,
		UserID:      req.User.ID,
		WorkspaceID: req.WorkspaceID,
		Currency:    req.Currency,
		Plan:        req.Plan,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		return "", internalError(err)
	}
	if url == "" {
		return "", newError(CodeInternalFailure, MsgCheckoutSessionFailed, nil)
	}
	return url, nil
}

// releaseClaim undoes ClaimStripeCustomer so a failed checkout does not strand the workspace
func (s *CheckoutService) releaseClaim(ctx context.Context, workspaceID, customerID string) {
	if err := s.workspaces.ReleaseStripeCustomer(context.WithoutCancel(ctx), workspaceID, customerID); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"workspace_id": workspaceID,
			"customer_id":  customerID,
		}).Error("failed to release stripe customer claim")
	}
}

func (s *CheckoutService) observe(ctx context.Context, req *CheckoutRequest, start time.Time, err error) {
	code := "OK"
	if err != nil {
		code = string(CodeOf(err))
	}

	if s.metrics != nil {
		s.metrics.CheckoutSessionsTotal.WithLabelValues(code).Inc()
		s.metrics.CheckoutSessionDuration.Observe(time.Since(start).Seconds())
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"plan":         string(req.Plan),
		"code":         code,
	})
	if err == nil {
		logger.Info("checkout session created")
	} else {
		switch CodeOf(err) {
		case CodeConfigurationMissing, CodeInternalFailure:
			logger.WithError(err).Error("checkout session failed")
		default:
			logger.WithError(err).Info("checkout session rejected")
		}
	}

	if auditErr := s.audit.Log(context.WithoutCancel(ctx), checkoutAuditEvent(req, err)); auditErr != nil {
		logger.WithError(auditErr).Warn("failed to record checkout audit event")
	}
}

func checkoutAuditEvent(req *CheckoutRequest, err error) *audit.Event {
	event := &audit.Event{
		EventType:   audit.EventTypeCheckoutSessionCreate,
		Status:      audit.EventStatusSuccess,
		UserID:      req.User.ID,
		WorkspaceID: req.WorkspaceID,
		Metadata: map[string]interface{}{
			"plan":     string(req.Plan),
			"currency": string(req.Currency),
		},
	}
	if err != nil {
		event.Status = audit.EventStatusFailure
		if CodeOf(err) == CodeNotFound {
			event.Status = audit.EventStatusDenied
		}
		event.Code = string(CodeOf(err))
		event.ErrorMessage = PublicMessage(err)
	}
	return event
}
