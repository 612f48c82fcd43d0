package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/filestage/pkg/staging"
)

type emptyDownloads struct {
	folder string
}

func (d emptyDownloads) GetDownloadableFiles(string) []string        { return nil }
func (d emptyDownloads) GetInlineImages(string) []staging.StagedFile { return nil }
func (d emptyDownloads) GetResultFilesFolder() string                { return d.folder }
func (d emptyDownloads) AllowedToDownload(string, string) bool       { return false }

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	return NewAPI(nil, emptyDownloads{folder: t.TempDir()}).App()
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	resp, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "filestage", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	for _, endpoint := range []string{"/livez", "/readyz"} {
		resp, _ := get(t, app, endpoint)
		assert.Equal(t, http.StatusOK, resp.StatusCode, endpoint)
	}
}

func TestAPI_Routes(t *testing.T) {
	app := setupTestApp(t)

	resp, body := get(t, app, "/executions/e1/files")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"files": []}`, body)

	resp, body = get(t, app, "/executions/e1/inline-images")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"images": []}`, body)

	resp, _ = get(t, app, "/result_files/some/file.txt")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
