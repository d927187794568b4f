//go:build e2e

// Package e2e_test drives a running server and worker through the public API.
//
// Required environment:
//   - E2E_BASE_URL (default http://localhost:8080/v1)
//   - E2E_JWT_SECRET, the server's JWT_SECRET, used to mint learner tokens
//   - E2E_TRAINER_USERNAME / E2E_TRAINER_PASSWORD for the trainer login
package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/httpserver"
)

var (
	baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")
	timeout = 30 * time.Second
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func waitForAppReady(t *testing.T, client *http.Client, maxWait time.Duration) {
	t.Helper()
	readyz := strings.TrimSuffix(baseURL, "/v1") + "/readyz"
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		resp, err := client.Get(readyz)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Skip("App not ready; skipping E2E")
}

func learnerToken(t *testing.T, learnerID string) string {
	t.Helper()
	secret := os.Getenv("E2E_JWT_SECRET")
	if secret == "" {
		t.Skip("E2E_JWT_SECRET not set")
	}
	tok, _, err := httpserver.NewTokenManager(secret, time.Hour).Issue(learnerID, httpserver.RoleLearner, "e2e")
	require.NoError(t, err)
	return tok
}

func trainerToken(t *testing.T, client *http.Client) string {
	t.Helper()
	user, pass := os.Getenv("E2E_TRAINER_USERNAME"), os.Getenv("E2E_TRAINER_PASSWORD")
	if user == "" || pass == "" {
		t.Skip("trainer credentials not set")
	}
	status, body := call(t, client, http.MethodPost, "/auth/token", "", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, status, "%v", body)
	tok, _ := body["access_token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func newID(prefix string) string { return prefix + "-" + uuid.NewString() }

// call sends a JSON request and decodes a JSON object response, if any.
func call(t *testing.T, client *http.Client, method, path, token string, payload any) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}
