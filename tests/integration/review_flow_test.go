//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"testing"
)

// Runs against the live question source; needs network access.
func TestReviewFlow(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	user := signIn(t, baseURL, "Reviewer")

	snap := decodeSnapshot(t, makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/review/fetch", baseURL), user.Token, map[string]interface{}{
		"amount":     3,
		"category":   18,
		"difficulty": "easy",
	}))
	if snap.Remaining == 0 || snap.Current == nil {
		t.Skip("question source returned no questions")
	}
	accepted := snap.Current.HistoryID
	before := snap.Remaining

	snap = decodeSnapshot(t, makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/review/accept", baseURL), user.Token, nil))
	if snap.Remaining != before-1 {
		t.Fatalf("expected %d remaining after accept, got %d", before-1, snap.Remaining)
	}

	resp := makeAuthenticatedRequest(t, http.MethodGet, fmt.Sprintf("%s/v1/history?status=accepted", baseURL), user.Token, nil)
	defer resp.Body.Close()
	var listing struct {
		Records []struct {
			ID int64 `json:"id"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode history failed: %v", err)
	}
	if len(listing.Records) != 1 || listing.Records[0].ID != accepted {
		t.Fatalf("expected accepted record %d, got %+v", accepted, listing.Records)
	}

	capture := makeAuthenticatedRequest(t, http.MethodGet, fmt.Sprintf("%s/v1/history/%d/capture", baseURL, accepted), user.Token, nil)
	defer capture.Body.Close()
	if capture.StatusCode != http.StatusOK {
		t.Fatalf("expected capture 200, got %d", capture.StatusCode)
	}
	if _, err := png.Decode(capture.Body); err != nil {
		t.Fatalf("capture is not a PNG: %v", err)
	}

	removed := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/history/%d/remove", baseURL, accepted), user.Token, nil)
	defer removed.Body.Close()
	if removed.StatusCode != http.StatusOK {
		t.Fatalf("expected remove 200, got %d", removed.StatusCode)
	}
}

func TestDefaultReviewerCanSignInTwice(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	first := signIn(t, baseURL, "")
	second := signIn(t, baseURL, "0")

	if first.Username != "0" || second.Username != "0" {
		t.Fatalf("expected default reviewer, got %q and %q", first.Username, second.Username)
	}
	if first.Token == second.Token {
		t.Fatal("expected separate sessions")
	}
}
