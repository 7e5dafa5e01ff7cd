package backup

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestParseS3URL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://evidence-backups", wantBkt: "evidence-backups"},
		{name: "bucket with prefix", raw: "s3://evidence-backups/kapeview/db/", wantBkt: "evidence-backups", wantPre: "kapeview/db"},
		{name: "invalid scheme", raw: "https://evidence-backups/kapeview", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///kapeview", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3URL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3URL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got %q %q, want %q %q", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestUploadDir_BuildsRecursiveCopy(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotArgs []string
	u := &S3Uploader{
		bucket: "evidence-backups",
		prefix: "kapeview",
		cfg:    S3Config{Region: "eu-west-1", Endpoint: "minio.local:9000"},
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return nil, nil
		},
	}
	if err := u.UploadDir(context.Background(), "/var/backups/kapeview-20250601-010000"); err != nil {
		t.Fatalf("UploadDir: %v", err)
	}
	want := []string{
		"s3", "cp", "/var/backups/kapeview-20250601-010000", "s3://evidence-backups/kapeview/kapeview-20250601-010000/",
		"--recursive", "--region", "eu-west-1", "--only-show-errors",
		"--endpoint-url", "https://minio.local:9000",
	}
	if gotName != "aws" || !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("command = %s %v\nwant aws %v", gotName, gotArgs, want)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":                      "",
		"s3.amazonaws.com":      "https://s3.amazonaws.com",
		"http://localhost:9000": "http://localhost:9000",
	} {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
