// Package archiver is the optional post-rotation shipping step: gzip a
// just-closed output file and, if configured, upload it to S3. Neither
// step touches a file still open for writing — the writer only ever
// hands archiver a path after its own close has returned — so nothing
// here can race message ordering or in-flight decoding (§9 Non-goals:
// "no transactional durability beyond an OS flush").
package archiver

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"

	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
)

// Config controls which archival steps run after a file is rotated out.
type Config struct {
	Gzip     bool
	S3Bucket string // empty disables upload
}

// Archiver performs the configured post-rotation steps.
type Archiver struct {
	cfg    Config
	log    *logging.Logger
	client *s3.Client
}

// New constructs an Archiver. The S3 client is only created (and AWS
// credentials only resolved) if cfg.S3Bucket is set.
func New(ctx context.Context, cfg Config, log *logging.Logger) (*Archiver, error) {
	a := &Archiver{cfg: cfg, log: log}
	if cfg.S3Bucket == "" {
		return a, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archiver: load AWS config: %w", err)
	}
	a.client = s3.NewFromConfig(awsCfg)
	return a, nil
}

// Archive runs the configured steps on a closed output file, returning
// the final on-disk path (gzip-renamed if that step ran).
func (a *Archiver) Archive(ctx context.Context, path string) (string, error) {
	finalPath := path
	if a.cfg.Gzip {
		gz, err := a.gzipFile(path)
		if err != nil {
			return path, fmt.Errorf("archiver: gzip %s: %w", path, err)
		}
		finalPath = gz
	}

	if a.client != nil {
		if err := a.upload(ctx, finalPath); err != nil {
			return finalPath, fmt.Errorf("archiver: upload %s: %w", finalPath, err)
		}
	}
	return finalPath, nil
}

func (a *Archiver) gzipFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	outPath := path + ".gz"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := gw.ReadFrom(in); err != nil {
		gw.Close()
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}

	if err := os.Remove(path); err != nil {
		a.log.Warnf("archiver: could not remove pre-gzip file %s: %v", path, err)
	}
	return outPath, nil
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := baseName(path)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.S3Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
