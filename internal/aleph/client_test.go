package aleph_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/aleph"
	"github.com/JakeFAU/crawldir/internal/aleph/alephtest"
)

func newTestClient(t *testing.T, host string) *aleph.Client {
	t.Helper()
	client, err := aleph.NewClient(aleph.Config{
		Host:    host,
		APIKey:  "secret",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesHost(t *testing.T) {
	t.Parallel()

	_, err := aleph.NewClient(aleph.Config{}, nil)
	require.ErrorContains(t, err, "host is required")

	_, err = aleph.NewClient(aleph.Config{Host: "aleph.local"}, nil)
	require.ErrorContains(t, err, "absolute URL")

	client, err := aleph.NewClient(aleph.Config{Host: "http://aleph.local", SessionID: "fixed"}, nil)
	require.NoError(t, err)
	require.Equal(t, "fixed", client.SessionID())

	generated, err := aleph.NewClient(aleph.Config{Host: "http://aleph.local"}, nil)
	require.NoError(t, err)
	require.Len(t, generated.SessionID(), 36)
}

func TestLoadCollectionFindsExisting(t *testing.T) {
	t.Parallel()

	srv := alephtest.NewServer()
	defer srv.Close()
	srv.AddCollection("leaks", "42")

	coll, err := newTestClient(t, srv.URL).LoadCollection(context.Background(), "leaks", aleph.CollectionConfig{})
	require.NoError(t, err)
	require.Equal(t, aleph.ID("42"), coll.ID)
	require.Empty(t, srv.Created())
	require.Equal(t, []string{"ApiKey secret"}, srv.APIKeys())
}

func TestLoadCollectionCreatesMissing(t *testing.T) {
	t.Parallel()

	srv := alephtest.NewServer()
	defer srv.Close()

	coll, err := newTestClient(t, srv.URL).LoadCollection(context.Background(), "fresh", aleph.CollectionConfig{
		Languages: []string{"en"},
		CaseFile:  true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, coll.ID)
	require.Equal(t, []string{"fresh"}, srv.Created())
}

func TestLoadCollectionLookupFailure(t *testing.T) {
	t.Parallel()

	srv := alephtest.NewServer()
	defer srv.Close()
	srv.FailLookup(http.StatusForbidden)

	_, err := newTestClient(t, srv.URL).LoadCollection(context.Background(), "x", aleph.CollectionConfig{})
	var apiErr *aleph.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "lookup failed", apiErr.Message)
	require.False(t, aleph.IsTransient(err))
}

func TestCreateCollectionDefaults(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	coll, err := newTestClient(t, srv.URL).CreateCollection(context.Background(), "fid", aleph.CollectionConfig{})
	require.NoError(t, err)
	require.Equal(t, aleph.ID("7"), coll.ID)
	require.Equal(t, "fid", got["label"])
	require.Equal(t, "other", got["category"])
	require.Equal(t, []any{}, got["languages"])
	require.Equal(t, false, got["casefile"])
}

func TestIngestUploadFolderAndFile(t *testing.T) {
	t.Parallel()

	srv := alephtest.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	folder, err := client.IngestUpload(context.Background(), "3", "", aleph.Metadata{
		ForeignID: "jan",
		FileName:  "jan",
	}, true)
	require.NoError(t, err)
	require.Equal(t, aleph.ID("doc:jan"), folder.ID)

	path := filepath.Join(t.TempDir(), "1.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	file, err := client.IngestUpload(context.Background(), "3", path, aleph.Metadata{
		ForeignID: "jan/1.txt",
		FileName:  "1.txt",
		ParentID:  string(folder.ID),
	}, false)
	require.NoError(t, err)
	require.Equal(t, aleph.ID("doc:jan/1.txt"), file.ID)

	calls := srv.Calls()
	require.Len(t, calls, 2)
	require.False(t, calls[0].HasFile)
	require.Equal(t, "true", calls[0].Index)
	require.Empty(t, calls[0].Meta.ParentID)
	require.True(t, calls[1].HasFile)
	require.Equal(t, "false", calls[1].Index)
	require.Equal(t, "3", calls[1].CollectionID)
	require.Equal(t, []byte("hello"), calls[1].Body)
	require.Equal(t, "doc:jan", calls[1].Meta.ParentID)
}

func TestIngestUploadClassifiesFailures(t *testing.T) {
	t.Parallel()

	srv := alephtest.NewServer()
	defer srv.Close()
	srv.FailIngest("a", http.StatusBadGateway)
	srv.FailIngest("b", http.StatusBadRequest)
	client := newTestClient(t, srv.URL)

	_, err := client.IngestUpload(context.Background(), "1", "", aleph.Metadata{ForeignID: "a"}, true)
	require.Error(t, err)
	require.True(t, aleph.IsTransient(err))

	_, err = client.IngestUpload(context.Background(), "1", "", aleph.Metadata{ForeignID: "b"}, true)
	require.Error(t, err)
	require.False(t, aleph.IsTransient(err))

	_, err = client.IngestUpload(context.Background(), "1", filepath.Join(t.TempDir(), "missing"),
		aleph.Metadata{ForeignID: "c"}, true)
	require.ErrorContains(t, err, "open upload")
	require.False(t, aleph.IsTransient(err))

	// A directory opens fine but fails on the first read.
	_, err = client.IngestUpload(context.Background(), "1", t.TempDir(),
		aleph.Metadata{ForeignID: "d"}, true)
	require.ErrorIs(t, err, aleph.ErrLocalRead)
	require.False(t, aleph.IsTransient(err))
}

func TestTimeoutBoundsResponseHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// Draining the body lets the server notice the client hanging up.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()
	client, err := aleph.NewClient(aleph.Config{Host: srv.URL, Timeout: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	_, err = client.IngestUpload(context.Background(), "1", "", aleph.Metadata{ForeignID: "a"}, true)
	require.Error(t, err)
	require.True(t, aleph.IsTransient(err))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestIngestUploadConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := newTestClient(t, host).IngestUpload(context.Background(), "1", "", aleph.Metadata{ForeignID: "a"}, true)
	require.Error(t, err)
	require.True(t, aleph.IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &aleph.Error{StatusCode: 503}, true},
		{"client error", &aleph.Error{StatusCode: 404}, false},
		{"transport", &aleph.Error{Err: errors.New("reset")}, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"canceled", &aleph.Error{Err: context.Canceled}, false},
		{"plain", errors.New("boom"), false},
		{"local read", &url.Error{Op: "Post", URL: "http://aleph", Err: fmt.Errorf("%w: eio", aleph.ErrLocalRead)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, aleph.IsTransient(tc.err))
		})
	}
}

func TestIDUnmarshal(t *testing.T) {
	t.Parallel()

	var got struct {
		A aleph.ID `json:"a"`
		B aleph.ID `json:"b"`
		C aleph.ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "x1", "b": 12, "c": null}`), &got))
	require.Equal(t, aleph.ID("x1"), got.A)
	require.Equal(t, aleph.ID("12"), got.B)
	require.Empty(t, got.C)
	require.Error(t, json.Unmarshal([]byte(`{"a": {}}`), &got))
}
