//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("WELLBEING_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

type catalogResponse struct {
	Categories []struct {
		ID        string `json:"id"`
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	} `json:"categories"`
}

func TestAssessmentJourneyIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	var auth struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/auth/register", "", map[string]string{
		"email":    fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano()),
		"password": "Secret123!",
		"name":     "Integration",
	}, &auth)
	if auth.Token == "" || auth.UserID == "" {
		t.Fatalf("unexpected register response: %+v", auth)
	}

	var cat catalogResponse
	doJSON(t, client, http.MethodGet, base+"/api/catalog", "", nil, &cat)
	if len(cat.Categories) != 5 {
		t.Fatalf("catalog categories=%d, want 5", len(cat.Categories))
	}

	var started struct {
		AssessmentID string `json:"assessment_id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/assessment/start", auth.Token, nil, &started)
	if started.AssessmentID == "" {
		t.Fatalf("start did not return an assessment id")
	}

	var last struct {
		Completed bool `json:"completed"`
		Persisted bool `json:"persisted"`
	}
	for _, c := range cat.Categories {
		answers := map[string]int{}
		for _, q := range c.Questions {
			answers[q.ID] = 4
		}
		doJSON(t, client, http.MethodPost, base+"/api/assessment/answers", auth.Token, map[string]any{"answers": answers}, nil)
		doJSON(t, client, http.MethodPost, base+"/api/assessment/next", auth.Token, nil, &last)
	}
	if !last.Completed || !last.Persisted {
		t.Fatalf("final advance completed=%v persisted=%v", last.Completed, last.Persisted)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/history/export?format=long", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export data: %v", err)
	}
	if !strings.Contains(string(csvData), started.AssessmentID) {
		t.Fatalf("export csv did not contain assessment id; csv=%s", string(csvData))
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, out any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
