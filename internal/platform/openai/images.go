package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

type ImageRequest struct {
	Prompt string
	Size   string
}

// ImageEditRequest edits Image according to Prompt. Background set to
// "transparent" asks the model for an alpha channel.
type ImageEditRequest struct {
	Image      []byte
	MimeType   string
	Filename   string
	Prompt     string
	Mask       []byte
	Background string
	Size       string
}

type ImageResult struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
}

type imagesRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
	Size   string `json:"size,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (r imagesResponse) first() (ImageResult, error) {
	var out ImageResult
	if len(r.Data) == 0 {
		return out, errors.New("no image returned")
	}
	item := r.Data[0]
	if strings.TrimSpace(item.B64JSON) == "" {
		return out, errors.New("image response missing b64_json")
	}
	raw, err := base64.StdEncoding.DecodeString(item.B64JSON)
	if err != nil || len(raw) == 0 {
		return out, fmt.Errorf("decode image base64: %w", err)
	}
	out.Bytes = raw
	out.MimeType = "image/png"
	out.RevisedPrompt = strings.TrimSpace(item.RevisedPrompt)
	return out, nil
}

func (c *client) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ImageResult{}, errors.New("image prompt required")
	}
	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = c.cfg.ImageSize
	}
	body := imagesRequest{Model: c.cfg.ImageModel, Prompt: prompt, N: 1, Size: size}
	var resp imagesResponse
	if err := c.do(ctx, jsonRequest("POST", "/v1/images/generations", c.cfg.ImageModel, body), &resp); err != nil {
		return ImageResult{}, err
	}
	return resp.first()
}

func (c *client) EditImage(ctx context.Context, req ImageEditRequest) (ImageResult, error) {
	if len(req.Image) == 0 {
		return ImageResult{}, errors.New("source image required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ImageResult{}, errors.New("edit prompt required")
	}
	payload, contentType, err := c.editForm(req)
	if err != nil {
		return ImageResult{}, err
	}
	r := request{
		method:      "POST",
		path:        "/v1/images/edits",
		model:       c.cfg.ImageModel,
		contentType: contentType,
		build:       func() (io.Reader, error) { return bytes.NewReader(payload), nil },
	}
	var resp imagesResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return ImageResult{}, err
	}
	return resp.first()
}

func (c *client) editForm(req ImageEditRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"model":  c.cfg.ImageModel,
		"prompt": strings.TrimSpace(req.Prompt),
		"n":      "1",
	}
	if s := strings.TrimSpace(req.Size); s != "" {
		fields["size"] = s
	}
	if bg := strings.TrimSpace(req.Background); bg != "" {
		fields["background"] = bg
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "image.png"
	}
	mime := strings.TrimSpace(req.MimeType)
	if mime == "" {
		mime = "image/png"
	}
	if err := writeFilePart(w, "image", name, mime, req.Image); err != nil {
		return nil, "", err
	}
	if len(req.Mask) > 0 {
		if err := writeFilePart(w, "mask", "mask.png", "image/png", req.Mask); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, filename, mime string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}
