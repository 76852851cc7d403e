package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/Misbahrahman/tasks/logging"
	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
	"github.com/Misbahrahman/tasks/utils"
)

// MailSender delivers one email. Injected so tests can capture outgoing mail.
type MailSender func(to, subject, body string) error

const verificationWindow = 15 * time.Minute

type UserService struct {
	Users     store.Collection
	BlackList map[string]bool
	Mail      MailSender

	mu      sync.Mutex
	revoked map[string]time.Time // logged-out tokens until their natural expiry
}

func NewUserService(users store.Collection, blackList map[string]bool, mail MailSender) *UserService {
	if mail == nil {
		mail = utils.SendEmail
	}
	return &UserService{
		Users:     users,
		BlackList: blackList,
		Mail:      mail,
		revoked:   make(map[string]time.Time),
	}
}

// Register provisions an inactive account and emails a verification code.
func (s *UserService) Register(ctx context.Context, email, password, name, role string) error {
	if _, err := s.findByEmail(ctx, email); err == nil {
		return fmt.Errorf("user with email already exists")
	}

	if err := utils.ValidatePassword(password, s.BlackList); err != nil {
		return err
	}

	name = html.EscapeString(name)
	email = html.EscapeString(email)
	if role == "" {
		role = "Team Member"
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}

	now := time.Now()
	code := utils.GenerateVerificationCode()

	user := models.User{
		Name:               name,
		Email:              email,
		Password:           string(hashedPassword),
		Role:               role,
		AvatarColor:        models.DefaultAvatarColor,
		Initials:           models.DeriveInitials(name),
		JoinDate:           now.Format("January 2006"),
		Metrics:            models.UserMetrics{AvgResponseTime: "0d"},
		Preferences:        models.DefaultPreferences(),
		Status:             "active",
		IsActive:           false,
		VerificationCode:   code,
		VerificationExpiry: now.Add(verificationWindow),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if _, err := s.Users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	subject := "Your Verification Code"
	body := fmt.Sprintf("Your verification code is %s. Please enter it within %d minutes.", code, int(verificationWindow.Minutes()))
	if err := s.Mail(user.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}

	logging.Logger.Infof("Event ID: USER_REGISTERED, Description: Verification code sent to %s", user.Email)
	return nil
}

// VerifyEmail activates the account when the submitted code matches and is
// still within its window.
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if user.VerificationCode != code {
		return fmt.Errorf("invalid verification code")
	}
	if time.Now().After(user.VerificationExpiry) {
		return fmt.Errorf("verification code has expired")
	}

	update := bson.M{"$set": bson.M{
		"isActive":         true,
		"verificationCode": "",
		"updatedAt":        time.Now(),
	}}
	if err := s.Users.UpdateByID(ctx, user.ID, update); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return models.User{}, "", errors.New("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return models.User{}, "", errors.New("invalid password")
	}

	if !user.IsActive {
		return models.User{}, "", errors.New("user not active")
	}

	token, err := utils.GenerateAuthToken(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to generate token: %v", err)
	}

	user.Password = ""
	return user, token, nil
}

// SendSignInLink mails a passwordless sign-in link to an existing account.
func (s *UserService) SendSignInLink(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return fmt.Errorf("user not active")
	}

	token, err := utils.GenerateEmailToken(user.Email, utils.PurposeSignInLink)
	if err != nil {
		return fmt.Errorf("failed to generate sign-in token: %v", err)
	}

	link := fmt.Sprintf("%s/login?signInToken=%s", os.Getenv("APP_URL"), token)
	body := fmt.Sprintf(`Click the link to sign in: <a href="%s">%s</a>`, link, link)
	return s.Mail(user.Email, "Your sign-in link", body)
}

// CompleteSignInWithLink exchanges an emailed sign-in token for a session.
func (s *UserService) CompleteSignInWithLink(ctx context.Context, linkToken string) (models.User, string, error) {
	claims, err := utils.ValidateTokenForPurpose(linkToken, utils.PurposeSignInLink)
	if err != nil {
		return models.User{}, "", err
	}

	user, err := s.findByEmail(ctx, claims.Email)
	if err != nil {
		return models.User{}, "", err
	}

	token, err := utils.GenerateAuthToken(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to generate token: %v", err)
	}

	user.Password = ""
	return user, token, nil
}

// ResetPassword mails a reset link to the account's address.
func (s *UserService) ResetPassword(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := utils.GenerateEmailToken(user.Email, utils.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %v", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", os.Getenv("APP_URL"), token)
	body := fmt.Sprintf(`Click the link to reset your password: <a href="%s">%s</a>`, link, link)
	return s.Mail(user.Email, "Password reset", body)
}

// CompletePasswordReset sets a new password from an emailed reset token.
func (s *UserService) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	claims, err := utils.ValidateTokenForPurpose(resetToken, utils.PurposePasswordReset)
	if err != nil {
		return err
	}

	if err := utils.ValidatePassword(newPassword, s.BlackList); err != nil {
		return err
	}

	user, err := s.findByEmail(ctx, claims.Email)
	if err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %v", err)
	}

	return s.Users.UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
		"password":  string(hashed),
		"updatedAt": time.Now(),
	}})
}

func (s *UserService) ChangePassword(ctx context.Context, userID primitive.ObjectID, oldPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return fmt.Errorf("new password and confirmation do not match")
	}

	var user models.User
	if err := s.Users.FindByID(ctx, userID, &user); err != nil {
		return fmt.Errorf("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return fmt.Errorf("old password is incorrect")
	}

	if err := utils.ValidatePassword(newPassword, s.BlackList); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %v", err)
	}

	return s.Users.UpdateByID(ctx, userID, bson.M{"$set": bson.M{
		"password":  string(hashed),
		"updatedAt": time.Now(),
	}})
}

// Logout revokes the token until its natural expiry.
func (s *UserService) Logout(token string) {
	claims, err := utils.ValidateToken(token)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = claims.ExpiresAt.Time
	for t, exp := range s.revoked {
		if time.Now().After(exp) {
			delete(s.revoked, t)
		}
	}
}

func (s *UserService) IsRevoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[token]
	return ok && time.Now().Before(exp)
}

// CurrentUser resolves an auth token to its user document.
func (s *UserService) CurrentUser(ctx context.Context, token string) (models.User, error) {
	if s.IsRevoked(token) {
		return models.User{}, fmt.Errorf("invalid token")
	}
	claims, err := utils.ValidateTokenForPurpose(token, utils.PurposeAuth)
	if err != nil {
		return models.User{}, err
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return models.User{}, fmt.Errorf("invalid user ID in token")
	}

	var user models.User
	if err := s.Users.FindByID(ctx, userID, &user); err != nil {
		return models.User{}, fmt.Errorf("user not found")
	}
	user.Password = ""
	return user, nil
}

// ListUsers is the one-shot user directory used to resolve assignees to
// display data. Initials are derived on the way out when the stored document
// predates the field.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.Users.Find(ctx, bson.M{}, &users); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	for i := range users {
		users[i].Password = ""
		if users[i].Initials == "" {
			users[i].Initials = models.DeriveInitials(users[i].Name)
		}
	}
	return users, nil
}

// ResolveUser returns display data for a user id. A dangling reference
// resolves to a placeholder instead of an error so one missing account never
// fails a whole assignee list.
func (s *UserService) ResolveUser(ctx context.Context, id primitive.ObjectID) models.User {
	var user models.User
	if err := s.Users.FindByID(ctx, id, &user); err != nil {
		return models.User{
			ID:       id,
			Name:     "Unknown user",
			Initials: "?",
			Status:   "inactive",
		}
	}
	user.Password = ""
	if user.Initials == "" {
		user.Initials = models.DeriveInitials(user.Name)
	}
	return user
}

// UpdateProfile applies a self-edit. Only the owning user may change their
// profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID, actorID primitive.ObjectID, name, role string, avatarColor models.AvatarColor) error {
	if userID != actorID {
		return fmt.Errorf("profile can only be edited by its owner")
	}

	set := bson.M{"updatedAt": time.Now()}
	if name != "" {
		name = html.EscapeString(name)
		set["name"] = name
		set["initials"] = models.DeriveInitials(name)
	}
	if role != "" {
		set["role"] = html.EscapeString(role)
	}
	if avatarColor != "" {
		if !models.ValidAvatarColor(avatarColor) {
			return fmt.Errorf("unknown avatar color: %s", avatarColor)
		}
		set["avatarColor"] = avatarColor
	}

	return s.Users.UpdateByID(ctx, userID, bson.M{"$set": set})
}

func (s *UserService) findByEmail(ctx context.Context, email string) (models.User, error) {
	var users []models.User
	if err := s.Users.Find(ctx, bson.M{"email": email}, &users); err != nil {
		return models.User{}, fmt.Errorf("user not found")
	}
	if len(users) == 0 {
		return models.User{}, fmt.Errorf("user not found")
	}
	return users[0], nil
}
