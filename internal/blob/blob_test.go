package blob

import (
	"context"
	"errors"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverMemory}, DriverMemory},
		{Config{Driver: DriverS3, S3: S3Config{Bucket: "b", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}}, DriverS3},
	}
	for _, tc := range cases {
		s, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("Open(%+v): %v", tc.cfg, err)
		}
		if s.Driver() != tc.want {
			t.Fatalf("Open(%+v) driver = %s, want %s", tc.cfg, s.Driver(), tc.want)
		}
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestKeys(t *testing.T) {
	if got := AssetKey("u1", "nda.docx"); got != "templates/u1/nda.docx" {
		t.Fatalf("AssetKey = %q", got)
	}
	if got := AssetKey("u1", "../../etc/passwd"); got != "templates/u1/passwd" {
		t.Fatalf("AssetKey must drop directories, got %q", got)
	}
	if got := ContractKey("t1", "abc", 3); got != "contracts/t1/abc/v3.json" {
		t.Fatalf("ContractKey = %q", got)
	}
}

func TestPutBytesReadAll(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(ctx, Config{Driver: DriverMemory})
	if _, err := PutBytes(ctx, s, "k", []byte("hello"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	info, data, err := ReadAll(ctx, s, "k")
	if err != nil || string(data) != "hello" || info.ContentType != "text/plain" {
		t.Fatalf("ReadAll: %q %+v %v", data, info, err)
	}
	if _, _, err := ReadAll(ctx, s, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
