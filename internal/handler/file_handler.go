package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/filestore"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/response"
)

// FileHandler serves archived clustering batches back to instructors.
type FileHandler struct {
	store filestore.Store
}

func NewFileHandler(store filestore.Store) *FileHandler {
	return &FileHandler{store: store}
}

func (h *FileHandler) Get(c *gin.Context) {
	user := currentUser(c)
	if user.Role != model.RoleInstructor {
		handleError(c, appErr.ErrForbidden)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		response.Error(c, http.StatusBadRequest, "invalid", "file key required")
		return
	}
	reader, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		handleError(c, appErr.ErrNotFound)
		return
	}
	defer reader.Close()
	c.Header("Content-Type", "application/json")
	if _, err := io.Copy(c.Writer, reader); err != nil {
		c.Abort()
	}
}
