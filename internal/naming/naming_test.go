package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple lowercase", "user", "user"},
		{"single word", "User", "user"},
		{"camel case", "loginAttempt", "login_attempt"},
		{"pascal case", "LoginAttempt", "login_attempt"},
		{"leading underscore", "_Audit", "_audit"},
		{"acronym", "APIKey", "a_p_i_key"},
		{"digits", "OAuth2Token", "o_auth2_token"},
		{"already snake", "user_name", "user_name"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SnakeCase(tt.input))
		})
	}
}

func TestRoutePrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain entity", "User", "user"},
		{"two words", "UserProfile", "user_profile"},
		{"leading underscore stripped", "_Audit", "audit"},
		{"multiple leading underscores stripped", "__Internal", "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoutePrefix(tt.input))
		})
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "user", TableName("User"))
	assert.Equal(t, "_audit", TableName("_Audit"), "table names keep the leading underscore")
	assert.Equal(t, "login_attempt", TableName("LoginAttempt"))
}
