package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		host         string
		wantMode     ObjectStorageMode
		wantInferred bool
		wantErr      bool
	}{
		{name: "default gcs", wantMode: ObjectStorageModeGCS},
		{name: "explicit gcs ignores host", mode: "gcs", host: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "GCS_EMULATOR", host: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator},
		{name: "inferred emulator", host: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator, wantInferred: true},
		{name: "unknown mode", mode: "local", wantErr: true},
		{name: "emulator without host", mode: "gcs_emulator", wantErr: true},
		{name: "emulator with relative host", mode: "gcs_emulator", host: "fake-gcs:4443", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.host)
			cfg, err := ResolveObjectStorageConfigFromEnv()
			if tc.wantErr {
				var cfgErr *ObjectStorageConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ObjectStorageConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.wantMode || cfg.Inferred != tc.wantInferred {
				t.Fatalf("cfg: want=(%s,%v) got=(%s,%v)", tc.wantMode, tc.wantInferred, cfg.Mode, cfg.Inferred)
			}
		})
	}
}
