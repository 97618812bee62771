package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreason-ai/catalog/internal/model"
)

func TestUserContext_IsServiceAccount(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]any
		want   bool
	}{
		{"missing claim", nil, false},
		{"false claim", map[string]any{"is_service_account": false}, false},
		{"true claim", map[string]any{"is_service_account": true}, true},
		{"wrong type", map[string]any{"is_service_account": "true"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := model.UserContext{Claims: tc.claims}
			assert.Equal(t, tc.want, u.IsServiceAccount())
		})
	}
}
