// Package validator registers BugSpotter's custom go-playground/validator
// tags onto gin's binding engine, so model structs validate password
// complexity through the same `binding:"..."` tags gin already checks
// required/min/max/email with.
package validator

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register installs the "password" tag on gin's default validator engine.
// Call once at startup before the router is built.
func Register() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("password", validatePassword)
}

// validatePassword requires at least 8 characters with upper, lower,
// digit, and a symbol — used on account-creation and setup passwords,
// not on login (an existing weak password must still be able to log in).
func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case 'a' <= char && char <= 'z':
			hasLower = true
		case '0' <= char && char <= '9':
			hasNumber = true
		case strings.ContainsRune("!@#$%^&*()_+-=[]{}|;:,.<>?", char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
