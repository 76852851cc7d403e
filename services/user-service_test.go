package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type userEnv struct {
	users *store.MemoryCollection
	svc   *UserService
	mail  []sentMail
}

func newUserEnv(t *testing.T) *userEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_URL", "http://localhost:3000")

	env := &userEnv{users: store.NewMemoryCollection()}
	env.svc = NewUserService(env.users, map[string]bool{"Password123!": true}, func(to, subject, body string) error {
		env.mail = append(env.mail, sentMail{To: to, Subject: subject, Body: body})
		return nil
	})
	return env
}

var codeRE = regexp.MustCompile(`\b(\d{6})\b`)

func (e *userEnv) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, e.mail)
	match := codeRE.FindStringSubmatch(e.mail[len(e.mail)-1].Body)
	require.NotNil(t, match, "verification mail carries a six digit code")
	return match[1]
}

func (e *userEnv) registerAndVerify(t *testing.T, email, password, name string) models.User {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.svc.Register(ctx, email, password, name, ""))
	require.NoError(t, e.svc.VerifyEmail(ctx, email, e.lastCode(t)))

	user, err := e.svc.findByEmail(ctx, email)
	require.NoError(t, err)
	return user
}

func TestRegisterProvisionsInactiveAccount(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, "alice@example.com", "Sup3rSecret!", "Alice Brown", ""))

	user, err := env.svc.findByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.False(t, user.IsActive)
	assert.Equal(t, "AB", user.Initials)
	assert.Equal(t, models.DefaultAvatarColor, user.AvatarColor)
	assert.Equal(t, "Team Member", user.Role)
	assert.NotEqual(t, "Sup3rSecret!", user.Password, "password is stored hashed")
	assert.NotEmpty(t, user.VerificationCode)

	require.Len(t, env.mail, 1)
	assert.Equal(t, "alice@example.com", env.mail[0].To)
	assert.Contains(t, env.mail[0].Body, user.VerificationCode)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, "alice@example.com", "Sup3rSecret!", "Alice Brown", ""))
	assert.Error(t, env.svc.Register(ctx, "alice@example.com", "An0therPass!", "Alice Again", ""))
}

func TestRegisterEnforcesPasswordRules(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	cases := []string{
		"Short1!",       // too short
		"alllower12!",   // no uppercase
		"NoDigitsHere!", // no digit
		"NoSpecial12",   // no special character
		"Password123!",  // blacklisted
	}
	for _, password := range cases {
		assert.Error(t, env.svc.Register(ctx, "bob@example.com", password, "Bob", ""), password)
	}
}

func TestVerifyEmailRejectsWrongCode(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, "alice@example.com", "Sup3rSecret!", "Alice Brown", ""))
	assert.Error(t, env.svc.VerifyEmail(ctx, "alice@example.com", "000000"))
}

func TestLoginFlow(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Register(ctx, "alice@example.com", "Sup3rSecret!", "Alice Brown", ""))

	// Unverified accounts cannot sign in.
	_, _, err := env.svc.Login(ctx, "alice@example.com", "Sup3rSecret!")
	assert.Error(t, err)

	require.NoError(t, env.svc.VerifyEmail(ctx, "alice@example.com", env.lastCode(t)))

	user, token, err := env.svc.Login(ctx, "alice@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Empty(t, user.Password, "password never leaves the service")

	_, _, err = env.svc.Login(ctx, "alice@example.com", "wrong password")
	assert.Error(t, err)

	_, _, err = env.svc.Login(ctx, "nobody@example.com", "Sup3rSecret!")
	assert.Error(t, err)
}

func TestCurrentUserAndLogout(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	registered := env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")

	_, token, err := env.svc.Login(ctx, "alice@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	current, err := env.svc.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, current.ID)
	assert.Empty(t, current.Password)

	env.svc.Logout(token)
	assert.True(t, env.svc.IsRevoked(token))

	_, err = env.svc.CurrentUser(ctx, token)
	assert.Error(t, err, "revoked tokens no longer resolve")
}

func TestSignInLinkRoundTrip(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")

	require.NoError(t, env.svc.SendSignInLink(ctx, "alice@example.com"))

	body := env.mail[len(env.mail)-1].Body
	match := regexp.MustCompile(`signInToken=([A-Za-z0-9._-]+)`).FindStringSubmatch(body)
	require.NotNil(t, match)

	user, token, err := env.svc.CompleteSignInWithLink(ctx, match[1])
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, token)

	// An auth token is not a sign-in link.
	_, _, err = env.svc.CompleteSignInWithLink(ctx, token)
	assert.Error(t, err)
}

func TestPasswordResetRoundTrip(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")

	require.NoError(t, env.svc.ResetPassword(ctx, "alice@example.com"))

	body := env.mail[len(env.mail)-1].Body
	match := regexp.MustCompile(`token=([A-Za-z0-9._-]+)`).FindStringSubmatch(body)
	require.NotNil(t, match)

	require.NoError(t, env.svc.CompletePasswordReset(ctx, match[1], "Fresh3rSecret!"))

	_, _, err := env.svc.Login(ctx, "alice@example.com", "Sup3rSecret!")
	assert.Error(t, err, "old password no longer works")

	_, _, err = env.svc.Login(ctx, "alice@example.com", "Fresh3rSecret!")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	user := env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")

	assert.Error(t, env.svc.ChangePassword(ctx, user.ID, "Sup3rSecret!", "Fresh3rSecret!", "different"))
	assert.Error(t, env.svc.ChangePassword(ctx, user.ID, "wrong old", "Fresh3rSecret!", "Fresh3rSecret!"))

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, "Sup3rSecret!", "Fresh3rSecret!", "Fresh3rSecret!"))

	_, _, err := env.svc.Login(ctx, "alice@example.com", "Fresh3rSecret!")
	assert.NoError(t, err)
}

func TestListUsersStripsPasswords(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")
	env.registerAndVerify(t, "bob@example.com", "Sup3rSecret!", "Bob Stone")

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, user := range users {
		assert.Empty(t, user.Password)
		assert.NotEmpty(t, user.Initials)
	}
}

func TestResolveUserDanglingReference(t *testing.T) {
	env := newUserEnv(t)

	id := primitive.NewObjectID()
	user := env.svc.ResolveUser(context.Background(), id)

	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Unknown user", user.Name)
	assert.Equal(t, "?", user.Initials)
	assert.Equal(t, "inactive", user.Status)
}

func TestUpdateProfile(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	user := env.registerAndVerify(t, "alice@example.com", "Sup3rSecret!", "Alice Brown")

	err := env.svc.UpdateProfile(ctx, user.ID, primitive.NewObjectID(), "Mallory", "", "")
	assert.Error(t, err, "only the owner may edit a profile")

	assert.Error(t, env.svc.UpdateProfile(ctx, user.ID, user.ID, "", "", "chartreuse"))

	require.NoError(t, env.svc.UpdateProfile(ctx, user.ID, user.ID, "Alice Stone", "Designer", models.AvatarTeal))

	updated := env.svc.ResolveUser(ctx, user.ID)
	assert.Equal(t, "Alice Stone", updated.Name)
	assert.Equal(t, "AS", updated.Initials)
	assert.Equal(t, "Designer", updated.Role)
	assert.Equal(t, models.AvatarTeal, updated.AvatarColor)
}
