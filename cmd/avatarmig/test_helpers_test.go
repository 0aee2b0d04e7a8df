package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"avatarmig/internal/config"
	"avatarmig/internal/profile"
	"avatarmig/internal/testsupport"
)

const testToken = "test-token"

// fakeAPI serves the token endpoint plus the person and change APIs.
type fakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	pages    [][]json.RawMessage
	chunks   [][]json.RawMessage
	failPost bool
}

func newFakeAPI(t *testing.T, pages ...[]json.RawMessage) *fakeAPI {
	t.Helper()
	api := &fakeAPI{pages: pages}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/oauth/token" && r.Method == http.MethodPost:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, testToken)

	case r.URL.Path == "/v2/users" && r.Method == http.MethodGet:
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		index := 0
		if next := r.Header.Get("nextPage"); next != "" {
			if _, err := fmt.Sscanf(next, "page-%d", &index); err != nil {
				http.Error(w, "bad token", http.StatusBadRequest)
				return
			}
		}
		a.mu.Lock()
		var items []json.RawMessage
		if index < len(a.pages) {
			items = a.pages[index]
		}
		var next any
		if index+1 < len(a.pages) {
			next = fmt.Sprintf("page-%d", index+1)
		}
		a.mu.Unlock()
		if items == nil {
			items = []json.RawMessage{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"Items": items, "nextPage": next})

	case r.URL.Path == "/v2/users" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var chunk []json.RawMessage
		if err := json.Unmarshal(body, &chunk); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.failPost {
			http.Error(w, "rejected", http.StatusBadRequest)
			return
		}
		a.chunks = append(a.chunks, chunk)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))

	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAPI) submitted() [][]json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]json.RawMessage(nil), a.chunks...)
}

func (a *fakeAPI) setFailPost(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failPost = fail
}

type cliTestEnv struct {
	cfg        *config.Config
	api        *fakeAPI
	configPath string
}

func setupCLITestEnv(t *testing.T, pages ...[]json.RawMessage) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	for _, name := range []string{"AVATARMIG_CLIENT_ID", "AVATARMIG_CLIENT_SECRET", "AVATARMIG_NAMING_SECRET"} {
		t.Setenv(name, "")
	}
	for _, publisher := range profile.Publishers() {
		t.Setenv(config.KeyEnvVar(publisher), "")
	}

	api := newFakeAPI(t, pages...)
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIs(api.server.URL),
		testsupport.WithSigningKey(),
		testsupport.WithLedger(),
	)
	cfg.Logging.Level = "error"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.InputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, api: api, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) addImage(t *testing.T, userID string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(e.cfg.Paths.InputDir, userID+".jpg"), testsupport.JPEG(t, 300, 300))
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// profileJSON builds a minimal profile document. Empty values are omitted.
func profileJSON(userID, uuid, picture string) json.RawMessage {
	doc := map[string]any{
		"active": map[string]any{"value": true},
	}
	for key, value := range map[string]string{"user_id": userID, "uuid": uuid, "picture": picture} {
		if value == "" {
			continue
		}
		doc[key] = map[string]any{
			"value":     value,
			"metadata":  map[string]any{"classification": "PUBLIC", "display": "staff", "verified": false},
			"signature": map[string]any{"publisher": map[string]any{"alg": "RS256", "typ": "JWS", "name": "mozilliansorg", "value": "old"}, "additional": []any{}},
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}

func legacyURL(userID string) string {
	return "https://s3.amazonaws.com/mozillians-avatars/" + userID + ".jpg"
}
