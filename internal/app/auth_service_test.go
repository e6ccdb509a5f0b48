package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phyrisk/internal/model"
	"phyrisk/internal/pkg/jwtutil"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	res, err := env.auth.Register(RegisterInput{Email: " Ann@Example.com ", Password: "password123", FullName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.Equal(t, model.RoleUser, res.User.Role)
	assert.Equal(t, "bearer", res.TokenType)

	claims, err := jwtutil.ParseToken("test-secret", res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	login, err := env.auth.Login(LoginInput{Email: "ANN@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = env.auth.Login(LoginInput{Email: "ann@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = env.auth.Login(LoginInput{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.register(t, "dup@example.com")

	cases := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"duplicate email", RegisterInput{Email: "DUP@example.com", Password: "password123"}, ErrEmailExists},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "password123"}, ErrInvalidInput},
		{"short password", RegisterInput{Email: "x@example.com", Password: "short"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Register(tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthService_AdminEmailsAndInactive(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	admin := env.register(t, "admin@phyrisk.io")
	assert.Equal(t, model.RoleAdmin, admin.Role)

	user := env.register(t, "bob@example.com")
	require.NoError(t, env.users.UpdateFields(user.ID, map[string]any{"is_active": false}))

	_, err := env.auth.Login(LoginInput{Email: "bob@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserInactive)

	_, err = env.auth.GetActiveUser(user.ID)
	assert.ErrorIs(t, err, ErrUserInactive)

	_, err = env.auth.GetActiveUser(9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_ConcurrentRegisterSameEmail(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.auth.Register(RegisterInput{Email: "race@example.com", Password: "password123"})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrEmailExists)
	}
	assert.Equal(t, 1, created)
}

func TestAuthService_PasswordWhitespaceIsSignificant(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	_, err := env.auth.Register(RegisterInput{Email: "space@example.com", Password: "  password123  "})
	require.NoError(t, err)

	_, err = env.auth.Login(LoginInput{Email: "space@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = env.auth.Login(LoginInput{Email: "space@example.com", Password: "  password123  "})
	assert.NoError(t, err)
}
