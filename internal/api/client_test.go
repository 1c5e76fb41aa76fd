package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "kms.example.org"})
	assert.Error(t, err)

	client, err := NewClient(Config{BaseURL: "https://kms.example.org/"})
	require.NoError(t, err)
	assert.Equal(t, "https://kms.example.org/KMS", client.BaseURL())
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, DefaultMaxRetries, client.retry.MaxRetries)
}

func TestNew_WithOptions(t *testing.T) {
	custom := &http.Client{}
	client, err := New("https://kms.example.org",
		WithBasePath("/"),
		WithHTTPClient(custom),
		WithTimeout(5*time.Second),
		WithRetries(-1),
	)
	require.NoError(t, err)

	assert.Equal(t, "https://kms.example.org", client.BaseURL())
	assert.NotSame(t, custom, client.httpClient)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Zero(t, custom.Timeout)
	assert.Equal(t, 0, client.retry.MaxRetries)
}

func TestNew_HTTPClientUntouched(t *testing.T) {
	custom := &http.Client{Timeout: time.Minute}
	client, err := New("https://kms.example.org", WithHTTPClient(custom))
	require.NoError(t, err)
	assert.Same(t, custom, client.httpClient)
	assert.Equal(t, time.Minute, custom.Timeout)

	before := http.DefaultClient.Timeout
	_, err = New("https://kms.example.org", WithHTTPClient(http.DefaultClient), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, before, http.DefaultClient.Timeout)

	client, err = New("https://kms.example.org", WithTimeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, client.httpClient.Timeout)
}

func TestSendPublicKey_FormAndBearer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/KMS/send_pub_key", r.URL.Path)
		assert.Equal(t, contentTypeForm, r.Header.Get("Content-Type"))
		assert.Equal(t, "BEARER tok-1", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a+b/c==", r.PostForm.Get("pubKey"))

		io.WriteString(w, `{"task":"solveChallenge","challenge":"Y2hhbGxlbmdl"}`)
	})

	resp, err := client.SendPublicKey(context.Background(), "tok-1", "a+b/c==")
	require.NoError(t, err)
	assert.Equal(t, "Y2hhbGxlbmdl", resp.Challenge)
}

func TestSolveChallenge_ReturnsSalt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "YWJjMTIz", r.PostForm.Get("solvedChallenge"))
		io.WriteString(w, `{"task":"sendWrappedKey","salt":"s0m3salt"}`)
	})

	resp, err := client.SolveChallenge(context.Background(), "tok", "YWJjMTIz")
	require.NoError(t, err)
	assert.Equal(t, "s0m3salt", resp.Salt)
}

func TestSendWrappedKey_Acks(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ready", `{"task":"ready"}`},
		{"empty object", `{}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			_, err := client.SendWrappedKey(context.Background(), "tok", "iv||ct")
			assert.NoError(t, err)
		})
	}
}

func TestDo_ErrorVariantWins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"cantEncryptChall","todo":"contact system administrator","accesstoken":"x","task":"solveChallenge"}`)
	})

	_, err := client.Confirm(context.Background(), nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "cantEncryptChall", serverErr.Message)
	assert.Equal(t, "contact system administrator", serverErr.Todo)
}

func TestDo_UnexpectedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong task", `{"task":"unwrap","challenge":"abc"}`},
		{"missing challenge", `{"task":"solveChallenge"}`},
		{"not json", `<html>login</html>`},
		{"array", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			_, err := client.SendPublicKey(context.Background(), "tok", "pk")
			assert.ErrorIs(t, err, ErrUnexpectedResponse)
		})
	}
}

func TestConfirm_Variants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ConfirmResponse
	}{
		{
			name: "send public key",
			body: `{"task":"sendPubKey","accesstoken":"t1"}`,
			want: ConfirmResponse{Task: TaskSendPubKey, AccessToken: "t1"},
		},
		{
			name: "solve challenge",
			body: `{"task":"solveChallenge","challenge":"c","accesstoken":"t2"}`,
			want: ConfirmResponse{Task: TaskSolveChallenge, Challenge: "c", AccessToken: "t2"},
		},
		{
			name: "unwrap",
			body: `{"task":"unwrap","wrappedKey":"iv||ct","salt":"s","accesstoken":"t3"}`,
			want: ConfirmResponse{Task: TaskUnwrap, WrappedKey: "iv||ct", Salt: "s", AccessToken: "t3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/KMS/ACS", r.URL.Path)
				io.WriteString(w, tt.body)
			})
			resp, err := client.Confirm(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *resp)
		})
	}
}

func TestGetPublicKey_Query(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		if id := r.URL.Query().Get("keynameid"); id != "" {
			assert.Equal(t, "abc123==", id)
		} else {
			assert.Equal(t, "alice", r.URL.Query().Get("username"))
		}
		io.WriteString(w, `{"task":"usePubKey","pubkey":"cGs=","keyNameId":"abc123=="}`)
	})

	resp, err := client.GetPublicKeyByID(context.Background(), "abc123==")
	require.NoError(t, err)
	assert.Equal(t, "cGs=", resp.PubKey)

	resp, err = client.GetPublicKeyByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "abc123==", resp.KeyNameID)
}

func TestGetPublicKey_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"task":"usePubKey","pubkey":"cGs=","keyNameId":"id"}`)
	})

	_, err := client.GetPublicKeyByID(context.Background(), "id")
	require.NoError(t, err)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestGetPublicKey_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetPublicKeyByID(context.Background(), "id")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.EqualValues(t, DefaultMaxRetries+1, attempts.Load())
}

func TestProtocolSteps_NeverRetried(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.SolveChallenge(context.Background(), "tok", "proof")
	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := New(url, WithRetries(-1))
	require.NoError(t, err)

	_, err = client.SendPublicKey(context.Background(), "tok", "pk")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 1, netErr.Attempt)
}

func TestDo_ContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetPublicKeyByID(ctx, "id")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_HTTPErrorWithoutPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "denied")
	})

	_, err := client.SendWrappedKey(context.Background(), "tok", "x")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
