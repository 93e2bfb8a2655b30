// Package s3 provides a Dispatcher that writes delivery envelopes to an S3
// bucket, where an external relay picks them up.
//
// Without explicit credentials the SDK's default chain applies (environment,
// shared config, instance or task roles, IRSA).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/rbaliyan/mailboxer"
	"github.com/rbaliyan/mailboxer/dispatch"
	"github.com/rbaliyan/mailboxer/retry"
)

// Outbox writes one JSON envelope per dispatch.
type Outbox struct {
	tm     *transfermanager.Client
	bucket string
	prefix string
	logger *slog.Logger
	outbox mailboxer.Dispatcher
}

var (
	_ mailboxer.Dispatcher = (*Outbox)(nil)
	_ dispatch.Writer      = (*Outbox)(nil)
)

// New loads AWS configuration and returns an outbox for the configured bucket.
func New(ctx context.Context, opts ...Option) (*Outbox, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, errors.New("s3 outbox: bucket is required")
	}

	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("s3 outbox: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = o.usePathStyle
		}
	})

	ob := &Outbox{
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}
	ob.outbox = dispatch.Outbox(ob, o.prefix)
	return ob, nil
}

func loadConfig(ctx context.Context, o *options) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.region)}

	switch {
	case o.accessKey != "" && o.secretKey != "":
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))

	case o.roleARN != "":
		base, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("base config for role: %w", err)
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), o.roleARN,
			func(ao *stscreds.AssumeRoleOptions) {
				ao.RoleSessionName = o.roleSessionName
				if o.externalID != "" {
					ao.ExternalID = aws.String(o.externalID)
				}
			})
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// Dispatch writes the envelope for n. Recipients without an address are
// listed as skipped; if none has one, nothing is written.
func (ob *Outbox) Dispatch(ctx context.Context, n *mailboxer.Notification, recipients []mailboxer.Participant) error {
	return ob.outbox.Dispatch(ctx, n, recipients)
}

// Write uploads body as key. Client errors (4xx) are permanent.
func (ob *Outbox) Write(ctx context.Context, key string, body []byte) error {
	_, err := ob.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket:      aws.String(ob.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		err = fmt.Errorf("s3 outbox: put %s: %w", key, err)
		if isClientError(err) {
			return retry.Permanent(err)
		}
		return err
	}
	ob.logger.Debug("wrote envelope to s3", "bucket", ob.bucket, "key", key)
	return nil
}

func isClientError(err error) bool {
	var re interface{ HTTPStatusCode() int }
	if !errors.As(err, &re) {
		return false
	}
	code := re.HTTPStatusCode()
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
		code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}
