package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

const minPasswordLength = 8

// DTOs for Request validation
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse never exposes the password hash.
type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type UserQuery struct {
	Role   string
	Search string
	Page   int
	Limit  int
}

type UserService interface {
	Create(ctx context.Context, actor workflow.Actor, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Get(ctx context.Context, id string) (*UserResponse, error)
	CurrentRole(ctx context.Context, id uuid.UUID) (string, error)
	List(ctx context.Context, query UserQuery) ([]UserResponse, int64, error)
	Update(ctx context.Context, actor workflow.Actor, id string, req UpdateUserRequest) (*UserResponse, error)
	Delete(ctx context.Context, actor workflow.Actor, id string) error
	EnsureAdmin(ctx context.Context, name, email, password string) (*UserResponse, bool, error)
}

type userService struct {
	users     repository.UserRepository
	audits    repository.AuditRepository
	txManager repository.TransactionManager
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewUserService signs login tokens with secret; they expire after ttl.
func NewUserService(
	users repository.UserRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	secret []byte,
	ttl time.Duration,
) UserService {
	return &userService{
		users:     users,
		audits:    audits,
		txManager: txManager,
		secret:    secret,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *userService) Create(ctx context.Context, actor workflow.Actor, req CreateUserRequest) (*UserResponse, error) {
	email := normalizeEmail(req.Email)

	v := &workflow.ValidationError{}
	if strings.TrimSpace(req.Name) == "" {
		v.Add("name", "is required")
	}
	validateEmail(v, email)
	validateRole(v, req.Role)
	validatePassword(v, req.Password)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if err := s.emailAvailable(ctx, email); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Phone:    strings.TrimSpace(req.Phone),
		Password: string(hashed),
		Role:     req.Role,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionCreateUser, user.ID.String(), user.Email, map[string]any{
			"role": user.Role,
		}))
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(timeLayout),
		User:      *mapToResponse(user),
	}, nil
}

func (s *userService) Get(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// CurrentRole reads the stored role, ErrNotFound once the user is deleted.
func (s *userService) CurrentRole(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *userService) List(ctx context.Context, query UserQuery) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, repository.UserFilter{
		Role:   query.Role,
		Search: query.Search,
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) Update(ctx context.Context, actor workflow.Actor, id string, req UpdateUserRequest) (*UserResponse, error) {
	userID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &workflow.ValidationError{}
	if req.Role != "" && req.Role != user.Role {
		validateRole(v, req.Role)
	}
	email := normalizeEmail(req.Email)
	if email != "" && email != user.Email {
		validateEmail(v, email)
	}
	if req.Password != "" {
		validatePassword(v, req.Password)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if email != "" && email != user.Email {
		if err := s.emailAvailable(ctx, email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if req.Role != "" && req.Role != user.Role {
		if err := s.keepOneSuperAdmin(ctx, user); err != nil {
			return nil, err
		}
		user.Role = req.Role
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = name
	}
	if req.Phone != "" {
		user.Phone = strings.TrimSpace(req.Phone)
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashed)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUpdateUser, user.ID.String(), user.Email, map[string]any{
			"role":             user.Role,
			"password_changed": req.Password != "",
		}))
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) Delete(ctx context.Context, actor workflow.Actor, id string) error {
	userID, err := parseID("id", id)
	if err != nil {
		return err
	}
	if userID == actor.ID {
		return workflow.Forbidden("users cannot delete their own account")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.keepOneSuperAdmin(ctx, user); err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Delete(txCtx, user.ID); err != nil {
			return err
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionDeleteUser, user.ID.String(), user.Email, nil))
	})
}

// EnsureAdmin creates the first super admin when the email is not registered yet.
// The boolean reports whether a user was created.
func (s *userService) EnsureAdmin(ctx context.Context, name, email, password string) (*UserResponse, bool, error) {
	existing, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return mapToResponse(existing), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	user, err := s.Create(ctx, workflow.Actor{}, CreateUserRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     model.RoleSuperAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *userService) emailAvailable(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return workflow.NewValidationError("email", "already exists")
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}

// keepOneSuperAdmin refuses to demote or delete the last super admin.
func (s *userService) keepOneSuperAdmin(ctx context.Context, user *model.User) error {
	if user.Role != model.RoleSuperAdmin {
		return nil
	}
	count, err := s.users.CountByRole(ctx, model.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if count <= 1 {
		return workflow.NewValidationError("role", "at least one super_admin must remain")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(v *workflow.ValidationError, email string) {
	if email == "" {
		v.Add("email", "is required")
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.Add("email", "is not a valid address")
	}
}

func validateRole(v *workflow.ValidationError, role string) {
	if !slices.Contains(model.AllRoles, role) {
		v.Add("role", "must be one of "+strings.Join(model.AllRoles, ", "))
	}
}

func validatePassword(v *workflow.ValidationError, password string) {
	if len(password) < minPasswordLength {
		v.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(timeLayout),
		UpdatedAt: user.UpdatedAt.Format(timeLayout),
	}
}
