package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt не принимает пароли длиннее 72 байт
	maxPasswordBytes = 72
)

// UserRepository определяет контракт для работы с учетными записями в бд
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id int64, fields map[string]any) (*models.User, error)
	UpdateResponder(ctx context.Context, id int64, fields map[string]any) (*models.User, error)
	DeleteResponder(ctx context.Context, id int64) error
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

// UserService - регистрация, вход и управление учетными записями
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ParseToken(token string) (models.Principal, error)
	GetProfile(ctx context.Context, p models.Principal) (*models.User, error)
	UpdateProfile(ctx context.Context, p models.Principal, upd models.ProfileUpdate) (*models.User, error)
	CreateResponder(ctx context.Context, p models.Principal, name, email, password string, rt models.ResponderType) (*models.User, error)
	ListResponders(ctx context.Context, p models.Principal) ([]*models.User, error)
	UpdateResponder(ctx context.Context, p models.Principal, id int64, upd models.ResponderUpdate) (*models.User, error)
	DeleteResponder(ctx context.Context, p models.Principal, id int64) error
	CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error)
}

type tokenClaims struct {
	Role          models.Role          `json:"role"`
	ResponderType models.ResponderType `json:"responder_type,omitempty"`
	jwt.RegisteredClaims
}

type userService struct {
	repo     UserRepository
	secret   []byte
	tokenTTL time.Duration
	validate *validator.Validate
	logger   *logrus.Logger
	now      func() time.Time
}

func NewUserService(repo UserRepository, jwtSecret string, tokenTTL time.Duration, logger *logrus.Logger) UserService {
	return &userService{
		repo:     repo,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Register создает учетную запись жителя
func (s *userService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	return s.createUser(ctx, "Register", name, email, password, models.RoleCitizen, nil)
}

// CreateResponder - администратор заводит учетную запись службы
func (s *userService) CreateResponder(ctx context.Context, p models.Principal, name, email, password string, rt models.ResponderType) (*models.User, error) {
	if p.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: only admins can create responders: %w", models.ErrForbidden)
	}
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown responder type %q", models.ErrValidation, rt)
	}
	return s.createUser(ctx, "CreateResponder", name, email, password, models.RoleResponder, &rt)
}

// CreateAdmin вызывается только из CLI, поэтому без проверки роли
func (s *userService) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	return s.createUser(ctx, "CreateAdmin", name, email, password, models.RoleAdmin, nil)
}

func (s *userService) createUser(ctx context.Context, method, name, email, password string, role models.Role, rt *models.ResponderType) (*models.User, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  method,
		"role":    role,
	})

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := s.validateAccount(name, email, password); err != nil {
		log.WithError(err).Warn("Rejected invalid account data")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service: could not hash password: %w", err)
	}

	user := &models.User{
		Name:          name,
		Email:         email,
		PasswordHash:  string(hash),
		Role:          role,
		ResponderType: rt,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		log.WithError(err).Warn("Failed to create user")
		return nil, fmt.Errorf("service: could not create user: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User created successfully")
	return user, nil
}

// Login проверяет пароль и выдает JWT. Неизвестный email и неверный пароль неразличимы.
func (s *userService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	log := s.logger.WithFields(logrus.Fields{"service": "user", "method": "Login"})

	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Warn("Login attempt for unknown email")
			return "", nil, fmt.Errorf("service: login failed: %w", models.ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("service: could not load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.WithField("user_id", user.ID).Warn("Login attempt with wrong password")
		return "", nil, fmt.Errorf("service: login failed: %w", models.ErrInvalidCredentials)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User logged in")
	return token, user, nil
}

func (s *userService) issueToken(user *models.User) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	if user.ResponderType != nil {
		claims.ResponderType = *user.ResponderType
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken проверяет подпись и срок токена и возвращает Principal
func (s *userService) ParseToken(token string) (models.Principal, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return models.Principal{}, fmt.Errorf("service: invalid token: %w", models.ErrInvalidCredentials)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || !claims.Role.Valid() {
		return models.Principal{}, fmt.Errorf("service: malformed token claims: %w", models.ErrInvalidCredentials)
	}
	if claims.Role == models.RoleResponder && !claims.ResponderType.Valid() {
		return models.Principal{}, fmt.Errorf("service: responder token without type: %w", models.ErrInvalidCredentials)
	}

	return models.Principal{
		UserID:        id,
		Role:          claims.Role,
		ResponderType: claims.ResponderType,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, p models.Principal) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get profile: %w", err)
	}
	return user, nil
}

// UpdateProfile меняет имя, email, пароль и контактные данные
func (s *userService) UpdateProfile(ctx context.Context, p models.Principal, upd models.ProfileUpdate) (*models.User, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "UpdateProfile",
		"user_id": p.UserID,
	})

	fields, err := s.accountFields(upd.Name, upd.Email, upd.Password)
	if err != nil {
		log.WithError(err).Warn("Rejected invalid profile data")
		return nil, err
	}

	contacts := []struct {
		column string
		value  *string
		rule   string
	}{
		{"phone_number", upd.PhoneNumber, "max=32"},
		{"address", upd.Address, "max=255"},
		{"emergency_contact_name", upd.EmergencyContactName, "max=100"},
		{"emergency_contact_phone", upd.EmergencyContactPhone, "max=32"},
		{"emergency_contact_relationship", upd.EmergencyContactRelationship, "max=50"},
	}
	for _, c := range contacts {
		if c.value == nil {
			continue
		}
		v := strings.TrimSpace(*c.value)
		if err := s.validate.Var(v, c.rule); err != nil {
			return nil, fmt.Errorf("%w: %s is too long", models.ErrValidation, c.column)
		}
		fields[c.column] = v
	}

	user, err := s.repo.Update(ctx, p.UserID, fields)
	if err != nil {
		log.WithError(err).Warn("Failed to update profile")
		return nil, fmt.Errorf("service: could not update profile: %w", err)
	}

	log.WithField("fields", len(fields)).Info("Profile updated")
	return user, nil
}

// UpdateResponder - администратор меняет имя, email, пароль или службу респондента
func (s *userService) UpdateResponder(ctx context.Context, p models.Principal, id int64, upd models.ResponderUpdate) (*models.User, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "user",
		"method":       "UpdateResponder",
		"responder_id": id,
	})
	if p.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: only admins can edit responders: %w", models.ErrForbidden)
	}

	fields, err := s.accountFields(upd.Name, upd.Email, upd.Password)
	if err != nil {
		log.WithError(err).Warn("Rejected invalid responder data")
		return nil, err
	}
	if upd.ResponderType != nil {
		if !upd.ResponderType.Valid() {
			return nil, fmt.Errorf("%w: unknown responder type %q", models.ErrValidation, *upd.ResponderType)
		}
		fields["responder_type"] = *upd.ResponderType
	}

	user, err := s.repo.UpdateResponder(ctx, id, fields)
	if err != nil {
		log.WithError(err).Warn("Failed to update responder")
		return nil, fmt.Errorf("service: could not update responder: %w", err)
	}

	log.WithField("fields", len(fields)).Info("Responder updated")
	return user, nil
}

// DeleteResponder удаляет только учетные записи служб
func (s *userService) DeleteResponder(ctx context.Context, p models.Principal, id int64) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "user",
		"method":       "DeleteResponder",
		"responder_id": id,
	})
	if p.Role != models.RoleAdmin {
		return fmt.Errorf("service: only admins can delete responders: %w", models.ErrForbidden)
	}

	if err := s.repo.DeleteResponder(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to delete responder")
		return fmt.Errorf("service: could not delete responder: %w", err)
	}
	log.Info("Responder deleted")
	return nil
}

// accountFields проверяет общие поля учетной записи и собирает их для UPDATE
func (s *userService) accountFields(name, email, password *string) (map[string]any, error) {
	fields := make(map[string]any)
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: name must not be empty", models.ErrValidation)
		}
		fields["name"] = n
	}
	if email != nil {
		e := normalizeEmail(*email)
		if err := s.validate.Var(e, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: invalid email", models.ErrValidation)
		}
		fields["email"] = e
	}
	if password != nil {
		if err := validatePassword(*password); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("service: could not hash password: %w", err)
		}
		fields["password_hash"] = string(hash)
	}
	return fields, nil
}

func (s *userService) ListResponders(ctx context.Context, p models.Principal) ([]*models.User, error) {
	if p.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: only admins can list responders: %w", models.ErrForbidden)
	}
	users, err := s.repo.ListByRole(ctx, models.RoleResponder)
	if err != nil {
		return nil, fmt.Errorf("service: could not list responders: %w", err)
	}
	return users, nil
}

func (s *userService) validateAccount(name, email, password string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: invalid email", models.ErrValidation)
	}
	return validatePassword(password)
}

// validatePassword - длина считается в байтах, как ее видит bcrypt
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must not exceed %d bytes", models.ErrValidation, maxPasswordBytes)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
