package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/filestage/pkg/download"
	"github.com/dukex/filestage/pkg/execution"
	"github.com/dukex/filestage/pkg/storage"
	"github.com/dukex/filestage/pkg/testutil"
	"github.com/dukex/filestage/pkg/web"
)

type testEnv struct {
	app      *fiber.App
	registry *execution.Registry
	feature  *download.Feature
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	local := storage.NewLocalStorage([]byte("secret"), nil)
	t.Cleanup(func() { _ = local.Close() })

	feature, err := download.NewFeature(local, t.TempDir(), nil)
	require.NoError(t, err)

	registry := execution.NewRegistry(nil)
	feature.Subscribe(registry)

	handlers := web.NewAPIHandlers(feature, nil)

	app := fiber.New()
	app.Get("/executions/:id/files", handlers.GetExecutionFiles)
	app.Get("/executions/:id/inline-images", handlers.GetInlineImages)
	app.Get("/result_files/*", handlers.DownloadResultFile)

	return &testEnv{app: app, registry: registry, feature: feature}
}

// runExecution stages content as out.txt (generic) and chart.png (inline image) for owner.
func (e *testEnv) runExecution(t *testing.T, id, owner string) {
	t.Helper()

	dir := t.TempDir()
	report := testutil.WriteFile(t, filepath.Join(dir, "out.txt"), "report")
	chart := testutil.WriteFile(t, filepath.Join(dir, "chart.png"), "png")

	config := testutil.CreateTestConfig(
		testutil.WithOutputFiles(report),
		testutil.WithInlineImages("##any_path.png#"),
	)

	ctx := context.Background()
	require.NoError(t, e.registry.Start(ctx, id, owner, config, nil))
	require.NoError(t, e.registry.Output(ctx, id, "chart at "+chart+"\n"))
	require.NoError(t, e.registry.Finish(ctx, id))
}

func (e *testEnv) get(t *testing.T, target, user string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.Header.Set(web.UserHeader, user)
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestAPIHandlers_GetExecutionFiles(t *testing.T) {
	env := setupTestApp(t)
	env.runExecution(t, "e1", "alice")

	resp, body := env.get(t, "/executions/e1/files", "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var files web.FilesResponse
	require.NoError(t, json.Unmarshal(body, &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "out.txt", filepath.Base(files.Files[0].Path))
	assert.False(t, filepath.IsAbs(files.Files[0].Path))
	assert.Equal(t, web.ResultFilesPrefix+files.Files[0].Path, files.Files[0].URL)
}

func TestAPIHandlers_GetExecutionFilesUnknown(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.get(t, "/executions/missing/files", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"files": []}`, string(body))
}

func TestAPIHandlers_GetInlineImages(t *testing.T) {
	env := setupTestApp(t)
	env.runExecution(t, "e1", "alice")

	resp, body := env.get(t, "/executions/e1/inline-images", "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var images web.InlineImagesResponse
	require.NoError(t, json.Unmarshal(body, &images))
	require.Len(t, images.Images, 1)
	assert.Equal(t, "chart.png", filepath.Base(images.Images[0].OriginalPath))
	assert.Equal(t, "chart.png", filepath.Base(images.Images[0].DownloadPath))
}

func TestAPIHandlers_ListingsHideOtherUsersFiles(t *testing.T) {
	env := setupTestApp(t)
	env.runExecution(t, "e1", "alice")

	tests := []struct {
		name     string
		target   string
		user     string
		expected string
	}{
		{"files for other user", "/executions/e1/files", "mallory", `{"files": []}`},
		{"files for anonymous", "/executions/e1/files", "", `{"files": []}`},
		{"images for other user", "/executions/e1/inline-images", "mallory", `{"images": []}`},
		{"images for anonymous", "/executions/e1/inline-images", "", `{"images": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.get(t, tt.target, tt.user)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tt.expected, string(body))
		})
	}
}

func TestAPIHandlers_DownloadResultFile(t *testing.T) {
	env := setupTestApp(t)
	env.runExecution(t, "e1", "alice")

	url := "/result_files/" + filepath.ToSlash(relativeFile(t, env, "e1"))

	tests := []struct {
		name           string
		target         string
		user           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "owner downloads",
			target:         url,
			user:           "alice",
			expectedStatus: http.StatusOK,
			expectedBody:   "report",
		},
		{
			name:           "other user refused",
			target:         url,
			user:           "mallory",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "anonymous refused",
			target:         url,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "missing file",
			target:         url + ".missing",
			user:           "alice",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.get(t, tt.target, tt.user)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, string(body))
			} else {
				assert.Contains(t, string(body), `"status":`)
			}
		})
	}
}

func TestAPIHandlers_DownloadRefusesTraversal(t *testing.T) {
	env := setupTestApp(t)
	env.runExecution(t, "e1", "alice")

	relative := filepath.ToSlash(relativeFile(t, env, "e1"))

	resp, body := env.get(t, "/result_files/"+relative+"/..%2F..%2F..%2F..%2Fsecret", "alice")
	assert.Contains(t, []int{http.StatusForbidden, http.StatusNotFound}, resp.StatusCode)
	assert.NotContains(t, string(body), "report")
}

func relativeFile(t *testing.T, env *testEnv, id string) string {
	t.Helper()

	files := env.feature.GetDownloadableFiles(id)
	require.Len(t, files, 1)

	relative, err := filepath.Rel(env.feature.GetResultFilesFolder(), files[0])
	require.NoError(t, err)

	return relative
}
