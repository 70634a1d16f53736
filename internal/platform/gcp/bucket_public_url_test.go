package gcp

import "testing"

func TestPublicURL(t *testing.T) {
	bucket := bucketConfig{name: "inkwell-assets"}
	tests := []struct {
		name string
		cfg  bucketConfig
		mode ObjectStorageMode
		base string
		key  string
		want string
	}{
		{"gcs default", bucket, ObjectStorageModeGCS, "", "/generations/u1/a.png", "https://storage.googleapis.com/inkwell-assets/generations/u1/a.png"},
		{"cdn wins", bucketConfig{name: "inkwell-assets", cdnDomain: "cdn.inkwell.test"}, ObjectStorageModeGCSEmulator, "http://localhost:4443", "a.png", "https://cdn.inkwell.test/a.png"},
		{"emulator media url", bucket, ObjectStorageModeGCSEmulator, "http://localhost:4443", "generations/u1/a.png", "http://localhost:4443/storage/v1/b/inkwell-assets/o/generations%2Fu1%2Fa.png?alt=media"},
		{"public base override", bucket, ObjectStorageModeGCS, "https://files.inkwell.test", "a.png", "https://files.inkwell.test/inkwell-assets/a.png"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicURL(tc.cfg, tc.mode, tc.base, tc.key); got != tc.want {
				t.Fatalf("publicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestResolvePublicBaseURL(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	got, err := resolvePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443/"})
	if err != nil || got != "http://fake-gcs:4443" {
		t.Fatalf("emulator fallback: got=%q err=%v", got, err)
	}
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "not a url")
	if _, err := resolvePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := ContentTypeForKey("thumbs/x.JPG"); got != "image/jpeg" {
		t.Fatalf("jpg: %q", got)
	}
	if got := ContentTypeForKey("inputs/blob"); got != "application/octet-stream" {
		t.Fatalf("unknown: %q", got)
	}
}
