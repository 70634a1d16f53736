package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type BucketCategory string

const (
	// Generated images, thumbnails and tool inputs.
	BucketCategoryAsset BucketCategory = "asset"
	// User avatars and project badges.
	BucketCategoryAvatar BucketCategory = "avatar"
)

const (
	transferTimeout = 2 * time.Minute
	deleteTimeout   = 30 * time.Second
)

type bucketConfig struct {
	name      string
	cdnDomain string
}

type BucketService interface {
	UploadFile(dbc dbctx.Context, category BucketCategory, key string, file io.Reader) error
	DeleteFile(dbc dbctx.Context, category BucketCategory, key string) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	GetPublicURL(category BucketCategory, key string) string
}

type bucketService struct {
	log     *logger.Logger
	client  *storage.Client
	cfg     ObjectStorageConfig
	baseURL string
	buckets map[BucketCategory]bucketConfig
}

// NewBucketServiceWithConfig reads bucket names from ASSET_GCS_BUCKET_NAME
// and AVATAR_GCS_BUCKET_NAME; avatars share the asset bucket when unset.
func NewBucketServiceWithConfig(log *logger.Logger, storageCfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	assets := envutil.String("ASSET_GCS_BUCKET_NAME", "")
	if assets == "" {
		return nil, fmt.Errorf("missing env var ASSET_GCS_BUCKET_NAME")
	}
	buckets := map[BucketCategory]bucketConfig{
		BucketCategoryAsset:  {name: assets, cdnDomain: envutil.String("ASSET_CDN_DOMAIN", "")},
		BucketCategoryAvatar: {name: envutil.String("AVATAR_GCS_BUCKET_NAME", assets), cdnDomain: envutil.String("AVATAR_CDN_DOMAIN", "")},
	}

	baseURL, err := resolvePublicBaseURL(storageCfg)
	if err != nil {
		return nil, err
	}
	client, err := openStorageClient(context.Background(), storageCfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	bs := &bucketService{
		log:     log.With("service", "BucketService"),
		client:  client,
		cfg:     storageCfg,
		baseURL: baseURL,
		buckets: buckets,
	}
	bs.log.Info("Object storage ready",
		"mode", storageCfg.Mode,
		"mode_inferred", storageCfg.Inferred,
		"public_base_url", baseURL,
		"asset_bucket", buckets[BucketCategoryAsset].name,
		"avatar_bucket", buckets[BucketCategoryAvatar].name,
	)
	return bs, nil
}

func openStorageClient(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	if !storageCfg.IsEmulatorMode() {
		return storage.NewClient(ctx, append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))...)
	}
	// The storage client only picks the emulator up from the environment.
	_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(storageCfg.EmulatorHost, "/"))
	return storage.NewClient(ctx, option.WithoutAuthentication())
}

func resolvePublicBaseURL(storageCfg ObjectStorageConfig) (string, error) {
	raw := envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	if raw == "" {
		if storageCfg.IsEmulatorMode() {
			return strings.TrimRight(storageCfg.EmulatorHost, "/"), nil
		}
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func (bs *bucketService) bucket(category BucketCategory) (bucketConfig, error) {
	cfg, ok := bs.buckets[category]
	if !ok {
		return bucketConfig{}, fmt.Errorf("unknown bucket category: %s", category)
	}
	return cfg, nil
}

func (bs *bucketService) UploadFile(dbc dbctx.Context, category BucketCategory, key string, file io.Reader) error {
	cfg, err := bs.bucket(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(dbc.Ctx, transferTimeout)
	defer cancel()

	w := bs.client.Bucket(cfg.name).Object(key).NewWriter(ctx)
	w.ContentType = ContentTypeForKey(key)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s/%s: %w", cfg.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s/%s: %w", cfg.name, key, err)
	}
	return nil
}

// DeleteFile treats a missing object as already deleted.
func (bs *bucketService) DeleteFile(dbc dbctx.Context, category BucketCategory, key string) error {
	cfg, err := bs.bucket(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(dbc.Ctx, deleteTimeout)
	defer cancel()
	err = bs.client.Bucket(cfg.name).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s/%s: %w", cfg.name, key, err)
	}
	return nil
}

func (bs *bucketService) GetPublicURL(category BucketCategory, key string) string {
	cfg, err := bs.bucket(category)
	if err != nil {
		return key
	}
	return publicURL(cfg, bs.cfg.Mode, bs.baseURL, key)
}

// ContentTypeForKey infers a MIME type from the object key extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(strings.TrimSpace(key))) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

func emulatorMediaURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(bucket), url.PathEscape(key))
}

func publicURL(cfg bucketConfig, mode ObjectStorageMode, baseURL, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if cfg.cdnDomain != "" {
		return "https://" + cfg.cdnDomain + "/" + key
	}
	if baseURL == "" {
		return "https://storage.googleapis.com/" + cfg.name + "/" + key
	}
	if mode == ObjectStorageModeGCSEmulator {
		return emulatorMediaURL(baseURL, cfg.name, key)
	}
	return baseURL + "/" + cfg.name + "/" + key
}

// cancelOnClose releases the download deadline together with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r cancelOnClose) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	cfg, err := bs.bucket(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	var body io.ReadCloser
	if bs.cfg.IsEmulatorMode() {
		body, err = downloadFromEmulator(ctx, strings.TrimRight(bs.cfg.EmulatorHost, "/"), cfg.name, key)
	} else {
		body, err = bs.client.Bucket(cfg.name).Object(key).NewReader(ctx)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("download %s/%s: %w", cfg.name, key, err)
	}
	return cancelOnClose{ReadCloser: body, cancel: cancel}, nil
}

// downloadFromEmulator goes through the JSON media endpoint; fake-gcs does
// not serve the XML reader path the storage client uses.
func downloadFromEmulator(ctx context.Context, host, bucket, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, emulatorMediaURL(host, bucket, key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("emulator status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}
