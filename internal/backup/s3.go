package backup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// S3Config holds the S3 destination of snapshot uploads. Credentials come
// from the aws CLI's usual environment and profile lookup.
type S3Config struct {
	BucketURL string
	Endpoint  string
	Region    string
}

// commandFunc runs an external command and returns its combined output.
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	return cmd.CombinedOutput()
}

// S3Uploader copies snapshot directories with `aws s3 cp --recursive`.
type S3Uploader struct {
	bucket string
	prefix string
	cfg    S3Config
	run    commandFunc
}

// NewS3Uploader parses cfg.BucketURL (s3://bucket/prefix, prefix optional)
// and checks that the aws CLI is installed.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3URL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, errors.New("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Uploader{bucket: bucket, prefix: prefix, cfg: cfg, run: execCommand}, nil
}

// UploadDir copies localDir to s3://bucket/prefix/<base of localDir>/.
func (u *S3Uploader) UploadDir(ctx context.Context, localDir string) error {
	key := filepath.Base(localDir)
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	args := []string{"s3", "cp", localDir, fmt.Sprintf("s3://%s/%s/", u.bucket, key),
		"--recursive", "--region", u.cfg.Region, "--only-show-errors"}
	if endpoint := normalizeEndpoint(u.cfg.Endpoint); endpoint != "" {
		args = append(args, "--endpoint-url", endpoint)
	}
	out, err := u.run(ctx, "aws", args...)
	if err != nil {
		return fmt.Errorf("s3 upload command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// normalizeEndpoint adds https:// to a bare host.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

func parseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", errors.New("s3: url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", errors.New("s3: url missing bucket name")
	}
	return u.Host, strings.Trim(strings.TrimSpace(u.Path), "/"), nil
}
