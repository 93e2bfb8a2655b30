package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/mailboxer/dispatch/dispatchtest"
	"github.com/rbaliyan/mailboxer/retry"
)

type fakeS3 struct {
	mu      sync.Mutex
	status  int
	puts    map[string]string
	methods []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, r.Method)
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[r.URL.Path] = string(body)
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestOutbox(t *testing.T, fake *fakeS3) *Outbox {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	ob, err := New(context.Background(),
		WithBucket("relay"),
		WithPrefix("mail"),
		WithEndpoint(srv.URL, true),
		WithStaticCredentials("key", "secret", ""),
	)
	require.NoError(t, err)
	return ob
}

func TestNew(t *testing.T) {
	_, err := New(context.Background())
	assert.Error(t, err, "bucket is required")

	o := newOptions(WithAssumeRole("arn:aws:iam::123456789012:role/relay", "", "ext"), WithRegion(""))
	assert.Equal(t, DefaultSessionName, o.roleSessionName)
	assert.Equal(t, DefaultRegion, o.region)
	assert.Equal(t, DefaultPrefix, o.prefix)
	assert.Equal(t, "ext", o.externalID)
}

func TestOutboxDispatch(t *testing.T) {
	fake := &fakeS3{}
	ob := newTestOutbox(t, fake)

	n, rs := dispatchtest.Notify(t, "invoice ready", dispatchtest.Contact("a", "a@example.com"))
	require.NoError(t, ob.Dispatch(context.Background(), n, rs))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.puts, 1)
	for path, body := range fake.puts {
		assert.True(t, strings.HasPrefix(path, "/relay/mail/"), path)
		assert.Contains(t, path, n.ID())
		assert.Contains(t, body, "invoice ready")
		assert.Contains(t, body, "a@example.com")
	}
}

func TestOutboxSkipsUnreachable(t *testing.T) {
	fake := &fakeS3{}
	ob := newTestOutbox(t, fake)

	n, rs := dispatchtest.Notify(t, "s", dispatchtest.Contact("a", ""))
	require.NoError(t, ob.Dispatch(context.Background(), n, rs))
	assert.Empty(t, fake.methods)
}

func TestOutboxClientErrorIsPermanent(t *testing.T) {
	fake := &fakeS3{status: http.StatusForbidden}
	ob := newTestOutbox(t, fake)

	err := ob.Write(context.Background(), "mail/x.json", []byte(`{}`))
	require.Error(t, err)
	assert.False(t, retry.IsRetryable(err))
}
