package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterBusinessMessage struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	OnResponse func(resp *RegisterBusinessResponse)
}

func (e RegisterBusinessMessage) Type() string { return "business.register" }

// Validate will run validation rules
func (e RegisterBusinessMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Name,
			validation.Required,
		),
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
		),
	)
}

type RegisterBusinessResponse struct {
	Business    *Business
	Role        *Role
	Permissions []*Permission
	Success     bool
}

// RegisterBusinessHandler provisions a business in one atomic unit:
// the business row, the creator's business-admin grant, and the read
// back of the role's permission set. Either all of it exists or none
// of it does. Prior ownership is the caller's check (GetByOwner), not
// deduplicated here.
type RegisterBusinessHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewRegisterBusinessHandler creates a handler with sane defaults.
func NewRegisterBusinessHandler(repo RepositoryManager) *RegisterBusinessHandler {
	return &RegisterBusinessHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit provisioning events.
func (h *RegisterBusinessHandler) WithActivitySink(sink ActivitySink) *RegisterBusinessHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterBusinessHandler) WithLogger(logger Logger) *RegisterBusinessHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterBusinessHandler) Execute(ctx context.Context, event RegisterBusinessMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during business registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterBusinessHandler) execute(ctx context.Context, event RegisterBusinessMessage) error {
	if event.OwnerID == uuid.Nil {
		return goerrors.New("business owner is required", goerrors.CategoryBadInput)
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid business payload")
	}

	resp := &RegisterBusinessResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		business, err := h.repo.Businesses().CreateTx(ctx, tx, &Business{
			Name:    event.Name,
			Email:   event.Email,
			OwnerID: event.OwnerID,
		})
		if err != nil {
			return err
		}

		if err := h.repo.Users().GrantRoleTx(ctx, tx, event.OwnerID, RoleBusinessAdmin); err != nil {
			return err
		}

		role, err := h.repo.Roles().GetWithPermissionsTx(ctx, tx, RoleBusinessAdmin)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read back business-admin role")
		}

		resp.Business = business
		resp.Role = role
		resp.Permissions = role.Permissions
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "business registration transaction failed")
	}

	h.recordActivity(ctx, resp.Business)

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterBusinessHandler) recordActivity(ctx context.Context, business *Business) {
	if business == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventBusinessProvisioned,
		Actor: ActorRef{
			ID:   business.OwnerID.String(),
			Type: "user",
		},
		UserID: business.OwnerID.String(),
		Metadata: map[string]any{
			"business_id": business.ID.String(),
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during business registration: %v", err)
	}
}
