package gcs

import "log/slog"

// DefaultPrefix is the object prefix for envelopes.
const DefaultPrefix = "outbox"

type options struct {
	bucket string
	prefix string

	// Emulators and tests.
	endpoint string
	noAuth   bool

	// At most one credential source is used, in this order.
	credentialsJSON []byte
	credentialsFile string
	apiKey          string

	logger *slog.Logger
}

// Option configures the GCS outbox.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		prefix: DefaultPrefix,
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

// WithPrefix sets the object key prefix. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithEndpoint targets an emulator. Authentication is skipped.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.noAuth = endpoint != ""
	}
}

// WithCredentialsJSON uses a service account key held in memory.
func WithCredentialsJSON(json []byte) Option {
	return func(o *options) {
		o.credentialsJSON = json
	}
}

// WithCredentialsFile uses a service account key file.
func WithCredentialsFile(path string) Option {
	return func(o *options) {
		o.credentialsFile = path
	}
}

// WithAPIKey authenticates with an API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
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
