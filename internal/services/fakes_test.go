package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/billing/plans"
	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	"github.com/yungbote/inkwell-backend/internal/platform/cache"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/openai"
	"github.com/yungbote/inkwell-backend/internal/platform/sendgrid"
	"github.com/yungbote/inkwell-backend/internal/platform/stripe"
	"github.com/yungbote/inkwell-backend/internal/realtime"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

func (e *recordingEmitter) events() []realtime.SSEEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]realtime.SSEEvent, 0, len(e.msgs))
	for _, m := range e.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (e *recordingEmitter) last() realtime.SSEMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.msgs) == 0 {
		return realtime.SSEMessage{}
	}
	return e.msgs[len(e.msgs)-1]
}

type fakeStripe struct {
	event    *stripe.Event
	parseErr error
	checkout []stripe.CheckoutRequest
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (*stripe.Session, error) {
	f.checkout = append(f.checkout, req)
	return &stripe.Session{ID: "cs_test", URL: "https://checkout.test/" + req.PlanKey}, nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.Session, error) {
	return &stripe.Session{ID: "bps_test", URL: "https://portal.test/" + customerID}, nil
}

func (f *fakeStripe) ParseWebhook(payload []byte, signature string) (*stripe.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if signature != "valid" {
		return nil, errors.New("signature mismatch")
	}
	return f.event, nil
}

type fakeMail struct {
	mu   sync.Mutex
	sent []sendgrid.SendEmailRequest
	err  error
}

func (f *fakeMail) Send(ctx context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &sendgrid.SendEmailResult{StatusCode: 202, MessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (b *fakeBucket) path(category gcp.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (b *fakeBucket) UploadFile(dbc dbctx.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[b.path(category, key)] = raw
	return nil
}

func (b *fakeBucket) DeleteFile(dbc dbctx.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, b.path(category, key))
	return nil
}

func (b *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[b.path(category, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + b.path(category, key)
}

func (b *fakeBucket) has(category gcp.BucketCategory, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[b.path(category, key)]
	return ok
}

type fakeOpenAI struct {
	mu       sync.Mutex
	text     string
	err      error
	image    []byte
	prompts  []string
	edits    []openai.ImageEditRequest
	imageErr error
}

func (f *fakeOpenAI) GenerateText(ctx context.Context, req openai.TextRequest) (openai.TextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.User)
	if f.err != nil {
		return openai.TextResult{}, f.err
	}
	return openai.TextResult{Text: f.text, Model: "test-model", InputTokens: 10, OutputTokens: 20}, nil
}

func (f *fakeOpenAI) GenerateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.imageErr != nil {
		return openai.ImageResult{}, f.imageErr
	}
	return openai.ImageResult{Bytes: f.image, MimeType: "image/png"}, nil
}

func (f *fakeOpenAI) EditImage(ctx context.Context, req openai.ImageEditRequest) (openai.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, req)
	if f.imageErr != nil {
		return openai.ImageResult{}, f.imageErr
	}
	return openai.ImageResult{Bytes: f.image, MimeType: "image/png"}, nil
}

type fakeDocument struct {
	text string
	err  error
}

func (f *fakeDocument) ExtractText(ctx context.Context, mimeType string, data []byte) (*gcp.DocumentText, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gcp.DocumentText{MimeType: mimeType, Text: f.text, Pages: []string{f.text}}, nil
}

func (f *fakeDocument) Close() error { return nil }

// testEnv wires every repo over a private sqlite database.
type testEnv struct {
	ctx     context.Context
	db      *gorm.DB
	log     *logger.Logger
	catalog *plans.Catalog
	emitter *recordingEmitter
	events  EventNotifier
	jobsN   JobNotifier

	users       repos.UserRepo
	tokens      repos.UserTokenRepo
	planRepo    repos.PlanRepo
	subs        repos.SubscriptionRepo
	billingEvts repos.BillingEventRepo
	usageRepo   repos.UsageRepo
	projects    repos.ProjectRepo
	members     repos.ProjectMemberRepo
	invites     repos.ProjectInviteRepo
	templates   repos.TemplateRepo
	generations repos.GenerationRepo
	assets      repos.AssetRepo
	jobRuns     repos.JobRunRepo
	snapshots   repos.SnapshotRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	emitter := &recordingEmitter{}
	return &testEnv{
		ctx:         context.Background(),
		db:          db,
		log:         log,
		catalog:     plans.Default(),
		emitter:     emitter,
		events:      NewEventNotifier(emitter),
		jobsN:       NewJobNotifier(emitter),
		users:       repos.NewUserRepo(db, log),
		tokens:      repos.NewUserTokenRepo(db, log),
		planRepo:    repos.NewPlanRepo(db, log),
		subs:        repos.NewSubscriptionRepo(db, log),
		billingEvts: repos.NewBillingEventRepo(db, log),
		usageRepo:   repos.NewUsageRepo(db, log),
		projects:    repos.NewProjectRepo(db, log),
		members:     repos.NewProjectMemberRepo(db, log),
		invites:     repos.NewProjectInviteRepo(db, log),
		templates:   repos.NewTemplateRepo(db, log),
		generations: repos.NewGenerationRepo(db, log),
		assets:      repos.NewAssetRepo(db, log),
		jobRuns:     repos.NewJobRunRepo(db, log),
		snapshots:   repos.NewSnapshotRepo(db, log),
	}
}

func (e *testEnv) billing(sc stripe.Client) *billingService {
	svc := NewBillingService(e.db, e.log, e.catalog, e.users, e.planRepo, e.subs, e.billingEvts, sc, e.events, "https://app.test")
	return svc.(*billingService)
}

func (e *testEnv) usage() *usageService {
	svc := NewUsageService(e.db, e.log, e.billing(nil), e.usageRepo)
	return svc.(*usageService)
}

func (e *testEnv) auth(adminEmails ...string) *authService {
	svc := NewAuthService(e.db, e.log, e.catalog, e.users, e.tokens, e.subs, nil, "test-secret", 15*time.Minute, 24*time.Hour, adminEmails)
	return svc.(*authService)
}

type fakeChannels struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeChannels) RemoveUserFromChannel(userID uuid.UUID, channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID.String()+"@"+channel)
}

func (f *fakeChannels) RemoveChannelForAll(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, "*@"+channel)
}

func (e *testEnv) projectsSvc(channels ChannelRevoker) *projectService {
	svc := NewProjectService(e.db, e.log, e.billing(nil), e.projects, e.members, e.invites, e.templates, e.assets, e.users, nil, e.events, channels)
	return svc.(*projectService)
}

func (e *testEnv) invitesSvc(mail *fakeMail) *inviteService {
	var client sendgrid.Client
	if mail != nil {
		client = mail
	}
	svc := NewInviteService(e.db, e.log, e.billing(nil), e.projects, e.members, e.invites, e.users, NewMailer(e.log, client), e.events, "https://app.test", 7*24*time.Hour)
	return svc.(*inviteService)
}

func (e *testEnv) templatesSvc() *templateService {
	svc := NewTemplateService(e.log, e.projectsSvc(nil), e.templates)
	return svc.(*templateService)
}

func (e *testEnv) jobsSvc() *jobService {
	return NewJobService(e.db, e.log, e.jobRuns, e.jobsN).(*jobService)
}

func (e *testEnv) assetsSvc(t *testing.T, bucket gcp.BucketService) *assetService {
	t.Helper()
	imaging, err := NewImagingService(e.log, bucket)
	if err != nil {
		t.Fatalf("NewImagingService: %v", err)
	}
	svc := NewAssetService(e.db, e.log, e.assets, e.generations, e.projects, e.members, bucket, imaging, e.events)
	return svc.(*assetService)
}

func (e *testEnv) toolsSvc(t *testing.T, ai openai.Client, doc gcp.Document, bucket gcp.BucketService) *toolService {
	t.Helper()
	svc := NewToolService(e.db, e.log, e.usage(), e.templatesSvc(), e.assetsSvc(t, bucket), e.jobsSvc(),
		e.projects, e.members, e.generations, ai, doc, bucket, e.jobsN)
	return svc.(*toolService)
}

func (e *testEnv) generationsSvc() *generationService {
	return NewGenerationService(e.log, e.generations, e.assets).(*generationService)
}

// tinyPNG encodes a w x h opaque image.
func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func (e *testEnv) analyticsSvc(c cache.Cache) *analyticsService {
	svc := NewAnalyticsService(e.log, e.billing(nil), e.users, e.subs, e.usageRepo, e.generations, e.snapshots, c)
	return svc.(*analyticsService)
}
