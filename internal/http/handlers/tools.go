package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/http/middleware"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/services"
)

// multipart overhead on top of the largest accepted upload
const multipartSlack = 1 << 20

type ToolHandler struct {
	log   *logger.Logger
	tools services.ToolService
	usage services.UsageService
}

func NewToolHandler(log *logger.Logger, tools services.ToolService, usage services.UsageService) *ToolHandler {
	return &ToolHandler{log: log.With("handler", "ToolHandler"), tools: tools, usage: usage}
}

type toolBody struct {
	Prompt     string            `json:"prompt"`
	TemplateID *uuid.UUID        `json:"template_id"`
	Vars       map[string]string `json:"vars"`
	ProjectID  *uuid.UUID        `json:"project_id"`
	Publish    bool              `json:"publish"`
	Options    map[string]string `json:"options"`
}

// POST /api/tools/:tool
// JSON body, or multipart with "file" (resume_review) or "image" (edit tools).
func (h *ToolHandler) Run(c *gin.Context) {
	tool := c.Param("tool")
	req := services.ToolRequest{
		UserID:     callerID(c),
		Tool:       tool,
		ConsumedAt: middleware.QuotaConsumedAt(c),
	}
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		err = h.fromMultipart(c, &req)
	} else {
		var body toolBody
		if err = c.ShouldBindJSON(&body); err == nil {
			req.Prompt, req.TemplateID, req.Vars = body.Prompt, body.TemplateID, body.Vars
			req.ProjectID, req.Publish, req.Options = body.ProjectID, body.Publish, body.Options
		}
	}
	if err != nil {
		if !req.ConsumedAt.IsZero() {
			if relErr := h.usage.Release(c.Request.Context(), req.UserID, req.ConsumedAt); relErr != nil {
				h.log.Warn("Quota release failed", "user_id", req.UserID, "error", relErr)
			}
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res, err := h.tools.Run(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if res.Async {
		response.RespondAccepted(c, res)
		return
	}
	response.RespondOK(c, res)
}

func (h *ToolHandler) fromMultipart(c *gin.Context, req *services.ToolRequest) error {
	limit := int64(services.MaxImageInputBytes + multipartSlack)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	req.Prompt = formValue(form, "prompt")
	req.Publish, _ = strconv.ParseBool(formValue(form, "publish"))
	if raw := formValue(form, "project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errors.New("invalid project_id")
		}
		req.ProjectID = &id
	}
	if raw := formValue(form, "template_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errors.New("invalid template_id")
		}
		req.TemplateID = &id
	}
	req.Options = map[string]string{}
	for _, key := range []string{"object", "length", "category", "size"} {
		if v := formValue(form, key); v != "" {
			req.Options[key] = v
		}
	}
	req.Vars = map[string]string{}
	for key, vals := range form.Value {
		if name, ok := strings.CutPrefix(key, "vars."); ok && len(vals) > 0 {
			req.Vars[name] = vals[0]
		}
	}

	field := "file"
	if content.IsImageTool(req.Tool) {
		field = "image"
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil
	}
	file, err := readUpload(files[0])
	if err != nil {
		return err
	}
	req.File = file
	return nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func readUpload(fh *multipart.FileHeader) (*services.ToolFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return &services.ToolFile{Name: fh.Filename, MimeType: mimeType, Data: data}, nil
}
