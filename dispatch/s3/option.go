package s3

import "log/slog"

const (
	// DefaultPrefix is the key prefix for envelopes.
	DefaultPrefix = "outbox"
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"
	// DefaultSessionName names assumed-role sessions.
	DefaultSessionName = "mailboxer-outbox"
)

type options struct {
	bucket string
	prefix string
	region string

	// S3-compatible services such as MinIO or LocalStack.
	endpoint     string
	usePathStyle bool

	accessKey    string
	secretKey    string
	sessionToken string

	roleARN         string
	roleSessionName string
	externalID      string

	logger *slog.Logger
}

// Option configures the S3 outbox.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		prefix: DefaultPrefix,
		region: DefaultRegion,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithBucket sets the bucket envelopes are written to. Required.
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the key prefix. Default "outbox".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithRegion sets the AWS region. Defaults to DefaultRegion.
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithEndpoint points the client at an S3-compatible service.
func WithEndpoint(endpoint string, pathStyle bool) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.usePathStyle = pathStyle
	}
}

// WithStaticCredentials uses a fixed access key pair. The session token may
// be empty.
func WithStaticCredentials(accessKey, secretKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
		o.sessionToken = sessionToken
	}
}

// WithAssumeRole obtains credentials by assuming roleARN through STS.
// externalID may be empty.
func WithAssumeRole(roleARN, sessionName, externalID string) Option {
	return func(o *options) {
		o.roleARN = roleARN
		o.roleSessionName = sessionName
		if o.roleSessionName == "" {
			o.roleSessionName = DefaultSessionName
		}
		o.externalID = externalID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
