package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kpi_tracker/internal/models"
)

// UserService manages local users and their identities in Firebase
type UserService struct {
	db       *gorm.DB
	identity IdentityProvider
	mailer   Mailer
	appURL   string
	logger   *zap.Logger
}

func NewUserService(db *gorm.DB, identity IdentityProvider, mailer Mailer, appURL string, logger *zap.Logger) *UserService {
	return &UserService{db: db, identity: identity, mailer: mailer, appURL: appURL, logger: logger}
}

// CreateUserInput describes a user to provision
type CreateUserInput struct {
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	Role     models.UserRole `json:"role"`
	Password string          `json:"password"`
	BrandIDs []uint          `json:"brand_ids"`
}

// UpdateUserInput changes a user's name or role
type UpdateUserInput struct {
	Name string          `json:"name"`
	Role models.UserRole `json:"role"`
}

// Validate normalizes the input and checks required fields
func (in *CreateUserInput) Validate() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = models.UserRoleUser
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalidf("invalid email %q", in.Email)
	}
	if !in.Role.Valid() {
		return invalidf("invalid role %q", in.Role)
	}
	if in.Password != "" && len(in.Password) < 6 {
		return invalidf("password must be at least 6 characters")
	}
	return nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Preload("Brands").Order("name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Brands").First(&user, id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

// FindByFirebaseUID resolves the local user behind a verified token
func (s *UserService) FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("firebase_uid = ?", uid).First(&user).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

// Create provisions the Firebase identity first and then the local row.
// If the local insert fails the identity is removed again.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if s.identity == nil {
		return nil, fmt.Errorf("identity provider not configured")
	}

	// soft-deleted users do not count, their email may be provisioned again
	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("user %w", ErrConflict)
	}

	params := (&auth.UserToCreate{}).Email(in.Email).EmailVerified(false)
	if in.Name != "" {
		params = params.DisplayName(in.Name)
	}
	if in.Password != "" {
		params = params.Password(in.Password)
	}

	record, err := s.identity.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, fmt.Errorf("user %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if err := s.identity.SetCustomUserClaims(ctx, record.UID, map[string]interface{}{"role": string(in.Role)}); err != nil {
		s.logger.Warn("failed to set role claim", zap.String("uid", record.UID), zap.Error(err))
	}

	user := models.User{
		FirebaseUID: record.UID,
		Name:        in.Name,
		Email:       in.Email,
		Role:        in.Role,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return replaceBrands(tx, &user, in.BrandIDs)
	})
	if err != nil {
		if delErr := s.identity.DeleteUser(ctx, record.UID); delErr != nil {
			s.logger.Error("failed to roll back identity", zap.String("uid", record.UID), zap.Error(delErr))
		}
		return nil, translate(err, "user")
	}

	s.sendWelcome(user)
	s.logger.Info("User provisioned", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.Get(ctx, user.ID)
}

func (s *UserService) Update(ctx context.Context, id uint, in UpdateUserInput) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, invalidf("invalid role %q", in.Role)
	}

	if name := strings.TrimSpace(in.Name); name != "" && name != user.Name {
		user.Name = name
		if s.identity != nil && user.FirebaseUID != "" {
			if _, err := s.identity.UpdateUser(ctx, user.FirebaseUID, (&auth.UserToUpdate{}).DisplayName(name)); err != nil {
				return nil, fmt.Errorf("failed to update identity: %w", err)
			}
		}
	}
	if in.Role != "" && in.Role != user.Role {
		user.Role = in.Role
		if s.identity != nil && user.FirebaseUID != "" {
			if err := s.identity.SetCustomUserClaims(ctx, user.FirebaseUID, map[string]interface{}{"role": string(in.Role)}); err != nil {
				return nil, fmt.Errorf("failed to update role claim: %w", err)
			}
		}
	}

	if err := s.db.WithContext(ctx).Omit("Brands").Save(user).Error; err != nil {
		return nil, translate(err, "user")
	}
	return user, nil
}

// SetBrands replaces the brands a user may access
func (s *UserService) SetBrands(ctx context.Context, id uint, brandIDs []uint) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceBrands(tx, user, brandIDs)
	})
	if err != nil {
		return nil, translate(err, "user brands")
	}
	return s.Get(ctx, id)
}

// Delete removes the local user and its Firebase identity
func (s *UserService) Delete(ctx context.Context, id uint) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Association("Brands").Clear(); err != nil {
			return err
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if err != nil {
		return translate(err, "user")
	}

	if s.identity != nil && user.FirebaseUID != "" {
		if err := s.identity.DeleteUser(ctx, user.FirebaseUID); err != nil && !auth.IsUserNotFound(err) {
			return fmt.Errorf("user deleted locally but identity removal failed: %w", err)
		}
	}
	return nil
}

func replaceBrands(tx *gorm.DB, user *models.User, brandIDs []uint) error {
	brands := make([]models.Brand, 0, len(brandIDs))
	if len(brandIDs) > 0 {
		if err := tx.Where("id IN ?", brandIDs).Find(&brands).Error; err != nil {
			return err
		}
		if len(brands) != len(uniqueIDs(brandIDs)) {
			return invalidf("unknown brand in list")
		}
	}
	return tx.Model(user).Association("Brands").Replace(brands)
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	m := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func (s *UserService) sendWelcome(user models.User) {
	if s.mailer == nil {
		return
	}
	body := fmt.Sprintf("Hello %s,\n\nAn account was created for you on the KPI tracker.\nSign in at %s/login with %s.\n",
		displayName(user), s.appURL, user.Email)
	if err := s.mailer.SendEmail([]string{user.Email}, "Your KPI tracker account", body); err != nil {
		s.logger.Warn("failed to send welcome email", zap.String("email", user.Email), zap.Error(err))
	}
}

func displayName(user models.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Email
}
