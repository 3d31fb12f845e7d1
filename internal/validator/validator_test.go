package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type passwordRequest struct {
	Password string `json:"password" binding:"required,password"`
}

func TestRegister_PasswordValid(t *testing.T) {
	Register()

	valid := []string{
		"SecureP@ss123",
		"MyP@ssw0rd!",
		"C0mpl3x!Pass",
		"Str0ng#Password",
	}

	for _, password := range valid {
		req := passwordRequest{Password: password}
		err := binding.Validator.ValidateStruct(req)
		assert.NoError(t, err, "password should be valid: %s", password)
	}
}

func TestRegister_PasswordInvalid(t *testing.T) {
	Register()

	tests := []struct {
		name     string
		password string
	}{
		{"too short", "Short1!"},
		{"no uppercase", "password123!"},
		{"no lowercase", "PASSWORD123!"},
		{"no number", "Password!"},
		{"no special", "Password123"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := passwordRequest{Password: tt.password}
			err := binding.Validator.ValidateStruct(req)
			assert.Error(t, err)
		})
	}
}

func TestValidatePassword_Direct(t *testing.T) {
	v := validator.New()
	v.RegisterValidation("password", validatePassword)

	assert.NoError(t, v.Var("Good1Pass!", "password"))
	assert.Error(t, v.Var("weak", "password"))
}
