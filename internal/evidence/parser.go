package evidence

import (
	"context"
	"errors"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// ParserConfig describes the parser container and how the media root is
// shared with it.
type ParserConfig struct {
	// Image is the parser image, e.g. ez-parsers:latest.
	Image string `mapstructure:"image"`
	// Platform is passed as --platform when set, e.g. linux/amd64.
	Platform string `mapstructure:"platform"`
	// Volume is the docker volume (or host path) holding the media root.
	Volume string `mapstructure:"volume"`
	// MountPoint is where Volume is mounted inside the parser container.
	MountPoint string `mapstructure:"mountpoint"`
}

// Parser defaults.
const (
	DefaultParserImage = "ez-parsers:latest"
	DefaultVolume      = "media"
	DefaultMountPoint  = "/mnt/media"
)

func (c ParserConfig) withDefaults() ParserConfig {
	if strings.TrimSpace(c.Image) == "" {
		c.Image = DefaultParserImage
	}
	if strings.TrimSpace(c.Volume) == "" {
		c.Volume = DefaultVolume
	}
	if strings.TrimSpace(c.MountPoint) == "" {
		c.MountPoint = DefaultMountPoint
	}
	c.MountPoint = strings.TrimRight(c.MountPoint, "/")
	return c
}

// Parser kinds understood by the parser image.
const (
	KindMFT      = "mft"
	KindAmcache  = "amcache"
	KindSecurity = "evtx"
)

// RunArgs builds the docker argument list that parses in (a path relative
// to the media root) into outDir (also relative) as csvName.
func (c ParserConfig) RunArgs(kind, in, outDir, csvName string) []string {
	args := []string{"run", "--rm"}
	if c.Platform != "" {
		args = append(args, "--platform", c.Platform)
	}
	args = append(args,
		"-v", c.Volume+":"+c.MountPoint,
		c.Image,
		kind,
		path.Join(c.MountPoint, filepath.ToSlash(in)),
		path.Join(c.MountPoint, filepath.ToSlash(outDir)),
		csvName,
	)
	return args
}

// Runner executes external commands.
type Runner interface {
	LookPath(file string) (string, error)
	// Run returns the combined output and exit code. err is non-nil only
	// when the command could not be run at all.
	Run(ctx context.Context, name string, args ...string) (out string, code int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(file string) (string, error) { return exec.LookPath(file) }

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode(), nil
	}
	if err != nil {
		return string(out), -1, err
	}
	return string(out), 0, nil
}
