package keycustody

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keycustody/client-go/kmstest"
)

const (
	testSecret   = "aIB8eCQa19Zv6R1LLFsp7odaPQ+fnLgLzRcJ2TF95gM="
	testPassword = "correct horse"
	testSalt     = "s0m3salt"
)

var (
	keyOnce sync.Once
	keys    [2]*rsa.PrivateKey
	keyErr  error
)

// testKeys returns two 2048-bit keys shared by all tests of the package.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		for i := range keys {
			keys[i], keyErr = rsa.GenerateKey(rand.Reader, 2048)
			if keyErr != nil {
				return
			}
		}
	})
	require.NoError(t, keyErr)
	return keys[0], keys[1]
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, _ := testKeys(t)
	return k
}

// startKMS serves a fake KMS with the fixed challenge and salt.
func startKMS(t *testing.T, opts ...kmstest.Option) (*kmstest.Server, string) {
	t.Helper()
	opts = append([]kmstest.Option{
		kmstest.WithChallenge([]byte("abc123")),
		kmstest.WithSalt(testSalt),
	}, opts...)
	return kmstest.Start(t, opts...)
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(baseURL),
		WithTimeout(5 * time.Second),
		WithKeyPair(testKey(t)),
	}, opts...)
	c, err := New(testSecret, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// postForm talks to the fake KMS directly, bypassing the client.
func postForm(t *testing.T, baseURL, path, token string, form url.Values) map[string]string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+kmstest.BasePath+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "BEARER "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func states(history []Transition) []State {
	out := make([]State, 0, len(history)+1)
	if len(history) > 0 {
		out = append(out, history[0].From)
	}
	for _, tr := range history {
		out = append(out, tr.To)
	}
	return out
}
