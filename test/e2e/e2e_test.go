//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/service"
)

const defaultBaseURL = "http://localhost:8080"

var (
	baseURL    string
	userToken  string
	adminToken string
	difficulty string
	paperID    string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Tokens are minted locally with the server's secret.
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	auth := service.NewAuthService(cfg)
	suffix := time.Now().Format("150405.000")

	userToken, err = auth.IssueToken("e2e-user-"+suffix, service.TokenTypeUser, nil, time.Hour)
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	adminToken, err = auth.IssueToken("e2e-staff-"+suffix, service.TokenTypeStaff,
		[]string{string(model.PermissionPapersAdmin), string(model.PermissionPapersGrade)}, time.Hour)
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestE2EFlow(t *testing.T) {
	t.Run("Difficulties", func(t *testing.T) {
		resp, err := get("/api/v1/public/difficulties", "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Difficulties []model.LibraryIndexItem `json:"difficulties"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		for _, d := range body.Data.Difficulties {
			if !d.IsHybrid() && d.TotalQuestions > 0 {
				difficulty = d.ID
				break
			}
		}
		if difficulty == "" {
			t.Fatal("no usable difficulty configured")
		}
	})

	t.Run("CreatePaper", func(t *testing.T) {
		paperID = createPaper(t)
	})

	t.Run("SubmitCorrectAnswers", func(t *testing.T) {
		answers := correctAnswers(t, paperID)
		resp, err := post("/api/v1/papers/"+paperID+"/submit", obj{"answers": answers}, userToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data model.GradeResult `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Outcome == model.OutcomePassed && body.Data.Passcode == nil {
			t.Error("passed paper has no passcode")
		}
		t.Logf("Outcome %s", body.Data.Outcome)
	})

	t.Run("ResubmitIsIdempotent", func(t *testing.T) {
		resp, err := post("/api/v1/papers/"+paperID+"/submit", obj{"answers": obj{}}, userToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("History", func(t *testing.T) {
		resp, err := get("/api/v1/papers/history", userToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Papers []model.HistoryItem `json:"papers"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if len(body.Data.Papers) != 1 || body.Data.Papers[0].PaperID != paperID {
			t.Fatalf("unexpected history: %+v", body.Data.Papers)
		}
	})

	t.Run("WebSocketStream", func(t *testing.T) {
		streamPaper := createPaper(t)
		answers := correctAnswers(t, streamPaper)

		u, err := url.Parse(baseURL)
		if err != nil {
			t.Fatal(err)
		}
		u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
		u.Path = "/ws/v1/papers/" + streamPaper + "/stream"
		u.RawQuery = "token=" + url.QueryEscape(userToken)

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(obj{"action": "autosave", "answers": answers}); err != nil {
			t.Fatal(err)
		}
		var progress struct {
			Event  string               `json:"event"`
			Result model.ProgressResult `json:"result"`
		}
		if err := conn.ReadJSON(&progress); err != nil {
			t.Fatal(err)
		}
		if progress.Result.Outcome != model.OutcomeProgressSaved {
			t.Fatalf("autosave outcome %s", progress.Result.Outcome)
		}

		if err := conn.WriteJSON(obj{"action": "submit"}); err != nil {
			t.Fatal(err)
		}
		var graded struct {
			Event  string            `json:"event"`
			Result model.GradeResult `json:"result"`
		}
		if err := conn.ReadJSON(&graded); err != nil {
			t.Fatal(err)
		}
		if graded.Event != "graded" {
			t.Fatalf("unexpected event %s", graded.Event)
		}
	})

	t.Run("AdminDelete", func(t *testing.T) {
		resp, err := do(http.MethodDelete, "/api/v1/admin/papers/"+paperID, nil, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})
}

// Helpers

type obj = map[string]any

func createPaper(t *testing.T) string {
	t.Helper()
	resp, err := post("/api/v1/papers", obj{"difficulty": difficulty, "count": 1}, userToken)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
	}

	var body struct {
		Data model.PaperView `json:"data"`
	}
	decodeJSON(t, resp, &body)
	if body.Data.PaperID == "" {
		t.Fatal("paper id missing")
	}
	return body.Data.PaperID
}

// correctAnswers reads the stored paper through the admin API and answers
// every objective question correctly.
func correctAnswers(t *testing.T, id string) obj {
	t.Helper()
	resp, err := get("/api/v1/admin/papers/"+id, adminToken)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
	}

	var body struct {
		Data model.Paper `json:"data"`
	}
	decodeJSON(t, resp, &body)

	answers := obj{}
	for _, q := range body.Data.PaperQuestions {
		switch q.QuestionType {
		case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice:
			ids := make([]string, 0, len(q.CorrectChoicesMap))
			for cid := range q.CorrectChoicesMap {
				ids = append(ids, cid)
			}
			answers[q.InternalID] = ids
		case model.QuestionTypeFillInBlank:
			answers[q.InternalID] = q.CorrectFillings
		case model.QuestionTypeEssay:
			answers[q.InternalID] = "essay answer"
		}
	}
	return answers
}

func do(method, path string, body any, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func post(path string, body any, token string) (*http.Response, error) {
	return do(http.MethodPost, path, body, token)
}

func get(path string, token string) (*http.Response, error) {
	return do(http.MethodGet, path, nil, token)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
