package app

import (
	"errors"
	"fmt"

	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

var newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig

type StorageBootstrapErrorCode string

const (
	StorageBootstrapInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         gcp.ObjectStorageMode
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v", e.Code, e.Mode, e.EmulatorHost, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService reads OBJECT_STORAGE_MODE and friends and dials the
// bucket client. Failures come back as *StorageBootstrapError.
func resolveBucketService(log *logger.Logger) (gcp.BucketService, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		classified := classifyStorageError(storageCfg, err)
		log.Error("Object storage config invalid", "mode", storageCfg.Mode, "error", classified)
		return nil, classified
	}
	log.Info("Selecting object storage provider",
		"mode", storageCfg.Mode,
		"inferred", storageCfg.Inferred,
		"emulator_host", storageCfg.EmulatorHost,
	)
	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		classified := classifyStorageError(storageCfg, err)
		log.Error("Object storage bootstrap failed", "mode", storageCfg.Mode, "error", classified)
		return nil, classified
	}
	return bucket, nil
}

func classifyStorageError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageBootstrapConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch {
		case cfgErr.Field == "OBJECT_STORAGE_MODE":
			code = StorageBootstrapInvalidMode
		case cfgErr.Field == "STORAGE_EMULATOR_HOST" && cfgErr.Value == "":
			code = StorageBootstrapMissingEmulatorHost
		case cfgErr.Field == "STORAGE_EMULATOR_HOST":
			code = StorageBootstrapInvalidEmulatorHost
		}
	}
	return &StorageBootstrapError{
		Code:         code,
		Mode:         storageCfg.Mode,
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}
