package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{bad`))
	w := httptest.NewRecorder()
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name        string
		vars        map[string]string
		key         string
		expectVal   int64
		expectError bool
	}{
		{
			name:      "valid integer",
			vars:      map[string]string{"org_id": "42"},
			key:       "org_id",
			expectVal: 42,
		},
		{
			name:        "missing parameter",
			vars:        map[string]string{},
			key:         "org_id",
			expectError: true,
		},
		{
			name:        "non-numeric parameter",
			vars:        map[string]string{"org_id": "abc"},
			key:         "org_id",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req = mux.SetURLVars(req, tt.vars)

			val, err := ParsePathInt64(req, tt.key)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectVal, val)
			}
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req = mux.SetURLVars(req, map[string]string{"workspace_id": "oops"})
	w := httptest.NewRecorder()

	_, ok := ParsePathInt64OrError(w, req, "workspace_id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt64(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test?workspace_id=7", nil)

		val, err := ParseQueryInt64(req, "workspace_id")

		assert.NoError(t, err)
		assert.NotNil(t, val)
		assert.Equal(t, int64(7), *val)
	})

	t.Run("absent returns nil", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)

		val, err := ParseQueryInt64(req, "workspace_id")

		assert.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test?workspace_id=x", nil)

		_, err := ParseQueryInt64(req, "workspace_id")

		assert.Error(t, err)
	})
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?status=pending", nil)

	assert.Equal(t, "pending", ParseQueryString(req, "status", "all"))
	assert.Equal(t, "all", ParseQueryString(req, "missing", "all"))
}
