package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pain-assessment/internal/config"
	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/draft"
	"github.com/jonathan/pain-assessment/internal/llm"
	"github.com/jonathan/pain-assessment/internal/orchestrator"
	"github.com/jonathan/pain-assessment/internal/server"
	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/types"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeClientConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "painmap.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadClientConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadClientConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoadClientConfig_FileOverrides(t *testing.T) {
	path := writeClientConfig(t, "server_url = \"http://clinic.example:9000\"\ndraft_backend = \"memory\"\ndebounce_ms = 100\n")

	cfg, err := loadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://clinic.example:9000", cfg.ServerURL)
	assert.Equal(t, config.BackendMemory, cfg.DraftBackend)
	assert.Equal(t, 100, cfg.DebounceMS)
	assert.Equal(t, config.Defaults().ReadTimeoutSeconds, cfg.ReadTimeoutSeconds)
}

func TestLoadClientConfig_Invalid(t *testing.T) {
	path := writeClientConfig(t, "draft_backend = \"redis\"\n")
	_, err := loadClientConfig(path)
	assert.Error(t, err)
}

func TestOpenDraftStore(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		path    string
	}{
		{"memory", config.BackendMemory, ""},
		{"file", config.BackendFile, "drafts"},
		{"sqlite", config.BackendSQLite, "drafts.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.DraftBackend = tt.backend
			if tt.path != "" {
				cfg.DraftPath = filepath.Join(t.TempDir(), tt.path)
			}

			store, closeStore, err := openDraftStore(cfg)
			require.NoError(t, err)
			require.NotNil(t, closeStore)
			defer func() { assert.NoError(t, closeStore()) }()

			ctx := context.Background()
			require.NoError(t, store.Set(ctx, draft.Key, []byte(`{"v":1}`)))
			got, err := store.Get(ctx, draft.Key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(got))
		})
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "cli-test-secret-0123456789")
	t.Setenv("JWT_EXPIRATION_HOURS", "")

	out, err := runRoot(t, "token", "--subject", "dr-lee", "--hours", "2")
	require.NoError(t, err)

	cfg, err := config.NewJWTConfig()
	require.NoError(t, err)
	claims, err := server.NewJWTService(cfg).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "dr-lee", claims.Subject)
	assert.Equal(t, server.RoleClinician, claims.Role)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	_, err := runRoot(t, "token", "--subject", "dr-lee")
	assert.Error(t, err)
}

func TestDraftCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeClientConfig(t, "draft_backend = \"file\"\ndraft_path = \""+filepath.ToSlash(dir)+"\"\n")

	out, err := runRoot(t, "draft", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No saved draft.")

	// Save a draft the way assess does.
	cfg, err := loadClientConfig(cfgPath)
	require.NoError(t, err)
	store, closeStore, err := openDraftStore(cfg)
	require.NoError(t, err)
	o := orchestrator.New(store, submission.NewHTTPTransport(cfg.ServerURL))
	require.NoError(t, o.UpdateField(orchestrator.FieldUser, types.User{Email: "pat@example.com", Name: "Pat Doe"}))
	require.NoError(t, o.Flush(context.Background()))
	o.Close()
	require.NoError(t, closeStore())

	out, err = runRoot(t, "draft", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ASSESSMENT REVIEW")
	assert.Contains(t, out, "Pat Doe")

	out, err = runRoot(t, "draft", "clear", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Draft cleared.")

	out, err = runRoot(t, "draft", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No saved draft.")
}

func TestLLMConfig(t *testing.T) {
	cfg, tier, err := llmConfig(&config.ServerConfig{LLMProvider: "openai", LLMTier: "advanced", LLMModel: "gpt-x"})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, llm.TierAdvanced, tier)
	assert.Equal(t, "gpt-x", cfg.Models[llm.TierAdvanced])
	assert.Equal(t, "gpt-4o-mini", cfg.Models[llm.TierLite])

	cfg, tier, err = llmConfig(&config.ServerConfig{})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderGemini, cfg.Provider)
	assert.Equal(t, llm.TierStandard, tier)

	_, _, err = llmConfig(&config.ServerConfig{LLMProvider: "bard"})
	assert.Error(t, err)
	_, _, err = llmConfig(&config.ServerConfig{LLMTier: "huge"})
	assert.Error(t, err)
}

func TestBuildNotifier_NoneConfigured(t *testing.T) {
	d, err := buildNotifier(&config.ServerConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRenderReport_HTML(t *testing.T) {
	a := db.NewAssessment(types.SubmissionPayload{
		SessionID: "session-1",
		Email:     "pat@example.com",
		FullName:  "Pat Doe",
		PainAreas: []types.PainArea{{Region: "Neck", Intensity: 3, Qualities: []types.PainQuality{types.QualityDullAching}}},
	}, "<p>Mild neck pain.</p>", types.UrgencyLow)

	out, err := renderReport(context.Background(), a, filepath.Join(t.TempDir(), "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Pat Doe")
	assert.Contains(t, string(out), "Mild neck pain.")
}

func TestDeltaPrinter(t *testing.T) {
	var out bytes.Buffer
	d := &deltaPrinter{out: &out}

	var st orchestrator.State
	st.Submission.Text = "<p>Hel"
	d.update(st)
	d.update(st)
	st.Submission.Text = "<p>Hello</p>"
	d.update(st)

	assert.Equal(t, "<p>Hello</p>", out.String())
}
