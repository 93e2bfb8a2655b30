// Package gcs provides a Dispatcher that writes delivery envelopes to a
// Google Cloud Storage bucket. Without explicit credentials Application
// Default Credentials apply.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/dispatch"
	"github.com/rbaliyan/mailboxer/retry"
)

const scope = "https://www.googleapis.com/auth/devstorage.read_write"

// Outbox writes one JSON envelope per dispatch.
type Outbox struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
	outbox mailboxer.Dispatcher
}

var (
	_ mailboxer.Dispatcher = (*Outbox)(nil)
	_ dispatch.Writer      = (*Outbox)(nil)
)

// New creates a storage client and returns an outbox for the configured
// bucket. Close releases the client.
func New(ctx context.Context, opts ...Option) (*Outbox, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, errors.New("gcs outbox: bucket is required")
	}

	clientOpts, err := clientOptions(o)
	if err != nil {
		return nil, fmt.Errorf("gcs outbox: %w", err)
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs outbox: create client: %w", err)
	}

	ob := &Outbox{
		client: client,
		bucket: o.bucket,
		logger: o.logger,
	}
	ob.outbox = dispatch.Outbox(ob, o.prefix)
	return ob, nil
}

func clientOptions(o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	switch {
	case o.noAuth:
		opts = append(opts, option.WithoutAuthentication())
	case o.credentialsJSON != nil || o.credentialsFile != "":
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{scope},
			CredentialsJSON: o.credentialsJSON,
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	case o.apiKey != "":
		opts = append(opts, option.WithAPIKey(o.apiKey))
	}
	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}
	return opts, nil
}

func (ob *Outbox) Dispatch(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
	return ob.outbox.Dispatch(ctx, n, recipients)
}

// Write stores body as key. Keys are unique, so an existing object means a
// duplicate write and is not retried.
func (ob *Outbox) Write(ctx context.Context, key string, body []byte) error {
	obj := ob.client.Bucket(ob.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return ob.wrap(key, err)
	}
	if err := w.Close(); err != nil {
		return ob.wrap(key, err)
	}
	ob.logger.Debug("wrote envelope to gcs", "bucket", ob.bucket, "key", key)
	return nil
}

func (ob *Outbox) wrap(key string, err error) error {
	err = fmt.Errorf("gcs outbox: write %s: %w", key, err)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= http.StatusBadRequest && apiErr.Code < http.StatusInternalServerError &&
		apiErr.Code != http.StatusTooManyRequests && apiErr.Code != http.StatusRequestTimeout {
		return retry.Permanent(err)
	}
	return err
}

// Close releases the storage client.
func (ob *Outbox) Close() error {
	return ob.client.Close()
}
