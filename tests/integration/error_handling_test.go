//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestUnauthorizedAccess(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")

	// Try to access protected endpoint without token
	resp := makeAuthenticatedRequest(t, http.MethodGet, fmt.Sprintf("%s/v1/review", baseURL), "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response failed: %v", err)
	}
	if errResp["error"] != "authentication_required" {
		t.Fatalf("expected authentication_required, got %v", errResp["error"])
	}
}

func TestUsernameTaken(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	user := signIn(t, baseURL, "Taken")

	resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/sessions", baseURL), "", map[string]string{
		"username": user.Username,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response failed: %v", err)
	}
	if errResp["error"] != "username_taken" {
		t.Fatalf("expected username_taken, got %v", errResp["error"])
	}
}

func TestValidationErrors(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	user := signIn(t, baseURL, "Validate")

	testCases := []struct {
		name    string
		payload map[string]interface{}
		field   string
	}{
		{name: "zero amount", payload: map[string]interface{}{"amount": 0}, field: "amount"},
		{name: "amount above limit", payload: map[string]interface{}{"amount": 50}, field: "amount"},
		{name: "unknown difficulty", payload: map[string]interface{}{"amount": 5, "difficulty": "extreme"}, field: "difficulty"},
		{name: "unknown type", payload: map[string]interface{}{"amount": 5, "type": "essay"}, field: "type"},
		{name: "category out of range", payload: map[string]interface{}{"amount": 5, "category": 99}, field: "category"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/review/fetch", baseURL), user.Token, tc.payload)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var errResp struct {
				Error   string                 `json:"error"`
				Details map[string]interface{} `json:"details"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response failed: %v", err)
			}
			if errResp.Error != "validation_failed" {
				t.Fatalf("expected validation_failed, got %s", errResp.Error)
			}
			if _, ok := errResp.Details[tc.field]; !ok {
				t.Fatalf("expected %s in details, got %v", tc.field, errResp.Details)
			}
		})
	}
}

func TestQueueEmptyDecision(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	user := signIn(t, baseURL, "Empty")

	for _, action := range []string{"accept", "reject"} {
		resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/review/%s", baseURL, action), user.Token, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("%s on empty queue: expected 409, got %d", action, resp.StatusCode)
		}
	}
}
