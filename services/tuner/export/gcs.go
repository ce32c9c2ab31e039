// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrBucketRequired indicates an upload without a bucket.
var ErrBucketRequired = errors.New("gcs bucket is required")

// GCSConfig configures report uploads.
type GCSConfig struct {
	// Bucket is the destination bucket.
	Bucket string

	// Prefix is prepended to every object name.
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// GCSUploader copies exported files to gs://<bucket>/<prefix>/<run-id>/.
type GCSUploader struct {
	client *storage.Client
	cfg    GCSConfig
	logger *slog.Logger
}

// NewGCSUploader creates a storage client for cfg.
//
// Inputs:
//
//	ctx - Context for client creation
//	cfg - Bucket, prefix and credentials
//	logger - Logger for structured logging
//
// Outputs:
//
//	*GCSUploader - Uploader. Call Close when done.
//	error - ErrBucketRequired, a missing key file or client creation failure
func NewGCSUploader(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSUploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSUploader{client: client, cfg: cfg, logger: logger}, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// Upload copies each local file under the run's prefix.
//
// Outputs:
//
//	[]string - gs:// URIs of the uploaded objects, in input order
//	error - The first failure. Files before it stay uploaded.
func (u *GCSUploader) Upload(ctx context.Context, runID string, localPaths ...string) ([]string, error) {
	uris := make([]string, 0, len(localPaths))
	for _, p := range localPaths {
		name := ObjectName(u.cfg.Prefix, runID, p)
		if err := u.uploadFile(ctx, p, name); err != nil {
			return uris, err
		}
		uri := "gs://" + u.cfg.Bucket + "/" + name
		uris = append(uris, uri)
		u.logger.Info("Uploaded report",
			slog.String("local", p),
			slog.String("uri", uri),
		)
	}
	return uris, nil
}

func (u *GCSUploader) uploadFile(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.client.Bucket(u.cfg.Bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(localPath)
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to copy %s to GCS object %s: %w", localPath, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectName, err)
	}
	return nil
}

// ObjectName returns <prefix>/<run-id>/<base name of localPath>.
func ObjectName(prefix, runID, localPath string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, filepath.Base(localPath))
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
