//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

type reviewer struct {
	Username string
	Token    string
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func signIn(t *testing.T, baseURL, username string) reviewer {
	t.Helper()

	if username != "" && username != "0" {
		username = fmt.Sprintf("%s-%d", username, time.Now().UnixNano())
	}
	resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/sessions", baseURL), "", map[string]string{
		"username": username,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected sign-in response status: %d", resp.StatusCode)
	}

	var out struct {
		Token   string `json:"token"`
		Session struct {
			Username string `json:"username"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode sign-in response failed: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("empty token in sign-in response")
	}

	return reviewer{Username: out.Session.Username, Token: out.Token}
}

func makeAuthenticatedRequest(t *testing.T, method, url, token string, payload interface{}) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

type snapshot struct {
	Remaining int `json:"remaining"`
	Cursor    int `json:"cursor"`
	Current   *struct {
		HistoryID int64    `json:"history_id"`
		Question  string   `json:"question"`
		Options   []string `json:"options"`
	} `json:"current"`
}

func decodeSnapshot(t *testing.T, resp *http.Response) snapshot {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("expected 200, got %d, error: %v", resp.StatusCode, errResp)
	}
	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot failed: %v", err)
	}
	return snap
}
