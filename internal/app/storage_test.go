package app

import (
	"errors"
	"testing"

	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

func TestClassifyStorageError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageBootstrapErrorCode
	}{
		{"invalid mode", &gcp.ObjectStorageConfigError{Field: "OBJECT_STORAGE_MODE", Value: "s3"}, StorageBootstrapInvalidMode},
		{"missing host", &gcp.ObjectStorageConfigError{Field: "STORAGE_EMULATOR_HOST"}, StorageBootstrapMissingEmulatorHost},
		{"bad host", &gcp.ObjectStorageConfigError{Field: "STORAGE_EMULATOR_HOST", Value: "fake-gcs:4443"}, StorageBootstrapInvalidEmulatorHost},
		{"dial", errors.New("dial tcp: connection refused"), StorageBootstrapConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator}, tc.err)
			var got *StorageBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause not preserved")
			}
		})
	}
}

func TestResolveBucketServiceRejectsBadMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	_, err := resolveBucketService(logger.NewNop())
	var got *StorageBootstrapError
	if !errors.As(err, &got) || got.Code != StorageBootstrapInvalidMode {
		t.Fatalf("want invalid_mode, got %v", err)
	}
}

func TestResolveBucketServiceWrapsConnectFailure(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	orig := newBucketServiceWithConfig
	t.Cleanup(func() { newBucketServiceWithConfig = orig })
	newBucketServiceWithConfig = func(*logger.Logger, gcp.ObjectStorageConfig) (gcp.BucketService, error) {
		return nil, errors.New("no credentials")
	}

	_, err := resolveBucketService(logger.NewNop())
	var got *StorageBootstrapError
	if !errors.As(err, &got) || got.Code != StorageBootstrapConnectFailed {
		t.Fatalf("want connect_failed, got %v", err)
	}
}
