package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{[]string{"*"}, "/v1/org/acme/proxy/data", true},
		{[]string{"/v1/org/*/proxy/data"}, "/v1/org/acme/proxy/data", true},
		{[]string{"/v1/org/*/proxy/data"}, "/v1/org/acme/proxy/data/42", false},
		{[]string{"/v1/org/*/proxy/**"}, "/v1/org/acme/proxy/data/42", true},
		{[]string{"/v1/org/*/proxy/**"}, "/v1/org/acme/proxy", true},
		{[]string{"/v1/org/*/proxy/**"}, "/v1/org/acme/qbo/status", false},
		{[]string{"/v1/org/*/qbo/status", "/v1/org/*/proxy/**"}, "/v1/org/acme/qbo/status", true},
		{nil, "/v1/org/acme/proxy/data", false},
	}
	for _, tt := range tests {
		got := Allows(models.Permissions{Endpoints: tt.patterns}, tt.path)
		assert.Equal(t, tt.want, got, "%v against %s", tt.patterns, tt.path)
	}
}
