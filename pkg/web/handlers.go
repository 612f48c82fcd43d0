package web

import (
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/dukex/filestage/pkg/log"
)

type APIHandlers struct {
	downloads Downloads
	logger    *slog.Logger
}

func NewAPIHandlers(downloads Downloads, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		downloads: downloads,
		logger:    log.OrDefault(logger, "api"),
	}
}

// GetExecutionFiles lists the generic outputs staged for an execution. Only files the
// requesting user may download are listed.
func (h *APIHandlers) GetExecutionFiles(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "execution id is required")
	}

	user := c.Get(UserHeader)
	response := FilesResponse{Files: []FileResponse{}}

	for _, path := range h.downloads.GetDownloadableFiles(id) {
		relative, ok := h.relative(path)
		if !ok {
			h.logger.WarnContext(c.Context(), "Staged file outside result folder", "execution_id", id, "path", path)

			continue
		}

		if !h.downloads.AllowedToDownload(relative, user) {
			continue
		}

		response.Files = append(response.Files, FileResponse{Path: relative, URL: resultURL(relative)})
	}

	return c.JSON(response)
}

// GetInlineImages lists the inline images found so far for an execution, limited to
// the ones the requesting user may download.
func (h *APIHandlers) GetInlineImages(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "execution id is required")
	}

	user := c.Get(UserHeader)
	response := InlineImagesResponse{Images: []InlineImageResponse{}}

	for _, image := range h.downloads.GetInlineImages(id) {
		relative, ok := h.relative(image.Path)
		if !ok || !h.downloads.AllowedToDownload(relative, user) {
			continue
		}

		response.Images = append(response.Images, InlineImageResponse{
			OriginalPath: image.Source,
			DownloadPath: relative,
			URL:          resultURL(relative),
		})
	}

	return c.JSON(response)
}

// DownloadResultFile streams a staged file to the user owning it.
func (h *APIHandlers) DownloadResultFile(c fiber.Ctx) error {
	raw, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return badRequest(c, "invalid file path")
	}

	relative := filepath.FromSlash(raw)
	if relative == "" || filepath.IsAbs(relative) {
		return badRequest(c, "invalid file path")
	}

	user := c.Get(UserHeader)
	if !h.downloads.AllowedToDownload(relative, user) {
		h.logger.WarnContext(c.Context(), "Refused file download", "path", raw, "user", user)

		return forbidden(c, "access to the file is not allowed")
	}

	path := filepath.Join(h.downloads.GetResultFilesFolder(), relative)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return notFound(c, "file not found")
	}

	if err != nil {
		return internalError(c, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return internalError(c, err)
	}

	c.Type(filepath.Ext(path))

	return c.SendStream(file, int(info.Size()))
}

func (h *APIHandlers) relative(path string) (string, bool) {
	relative, err := filepath.Rel(h.downloads.GetResultFilesFolder(), path)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(relative), true
}

func resultURL(relative string) string {
	segments := strings.Split(relative, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return ResultFilesPrefix + strings.Join(segments, "/")
}
