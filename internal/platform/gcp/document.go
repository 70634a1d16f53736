package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// Document extracts plain text from uploaded documents (resumes).
type Document interface {
	ExtractText(ctx context.Context, mimeType string, data []byte) (*DocumentText, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

func DocumentConfigFromEnv() DocumentConfig {
	return DocumentConfig{
		ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", envutil.String("GOOGLE_CLOUD_PROJECT", "")),
		Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
		ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
		ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
		Timeout:          envutil.Duration("DOCUMENTAI_TIMEOUT", 2*time.Minute),
	}
}

type DocumentText struct {
	Processor string
	MimeType  string
	Text      string
	Pages     []string
}

type documentService struct {
	log       *logger.Logger
	cfg       DocumentConfig
	processor string
	docClient *documentai.DocumentProcessorClient
}

func NewDocument(log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("missing DOCUMENTAI_PROJECT_ID / DOCUMENTAI_PROCESSOR_ID")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	slog := log.With("service", "gcp.Document")

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentService{log: slog, cfg: cfg, processor: name, docClient: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ExtractText(ctx context.Context, mimeType string, data []byte) (*DocumentText, error) {
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	if len(data) == 0 {
		return &DocumentText{Processor: s.processor, MimeType: mimeType}, nil
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.cfg.Timeout)
	defer cancel()

	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	var doc *documentaipb.Document
	if resp != nil {
		doc = resp.GetDocument()
	}
	out := documentText(doc)
	out.Processor = s.processor
	out.MimeType = mimeType
	return out, nil
}

func documentText(doc *documentaipb.Document) *DocumentText {
	out := &DocumentText{}
	if doc == nil {
		return out
	}
	out.Text = strings.TrimSpace(doc.GetText())
	for _, p := range doc.GetPages() {
		var b strings.Builder
		for _, para := range p.GetParagraphs() {
			t := collapseWhitespace(textFromAnchor(doc.GetText(), para.GetLayout().GetTextAnchor()))
			if t == "" {
				continue
			}
			b.WriteString(t)
			b.WriteString("\n")
		}
		if pt := strings.TrimSpace(b.String()); pt != "" {
			out.Pages = append(out.Pages, pt)
		}
	}
	if out.Text == "" && len(out.Pages) > 0 {
		out.Text = strings.Join(out.Pages, "\n\n")
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if end > len(full) {
			end = len(full)
		}
		if start < 0 || start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if v := strings.TrimSpace(version); v != "" {
		return base + "/processorVersions/" + v
	}
	return base
}
