// Package web provides the HTTP API exposing the files staged for executions.
package web

import "github.com/dukex/filestage/pkg/staging"

// UserHeader carries the id of the user issuing a download request.
const UserHeader = "X-User-Id"

// ResultFilesPrefix is the route prefix staged files are served under.
const ResultFilesPrefix = "/result_files/"

// Downloads is the part of the download feature the API reads from.
type Downloads interface {
	GetDownloadableFiles(executionID string) []string
	GetInlineImages(executionID string) []staging.StagedFile
	GetResultFilesFolder() string
	AllowedToDownload(path, owner string) bool
}

// FileResponse describes one staged file. Path is relative to the result files folder.
type FileResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type FilesResponse struct {
	Files []FileResponse `json:"files"`
}

type InlineImageResponse struct {
	OriginalPath string `json:"original_path"`
	DownloadPath string `json:"download_path"`
	URL          string `json:"url"`
}

type InlineImagesResponse struct {
	Images []InlineImageResponse `json:"images"`
}
