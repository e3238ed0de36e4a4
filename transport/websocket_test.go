package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWSConnRoundTrip(t *testing.T) {
	sink := &fakeSink{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := AcceptWS(w, r)
		require.NoError(t, err)
		id, ok := sink.DeferInbound(conn)
		require.True(t, ok)
		conn.Serve(sink, id)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := DialWS(url)
	require.NoError(t, err)
	defer client.Close()

	client.Enqueue([]byte("hi"))
	require.Eventually(t, func() bool {
		bufs, _ := sink.snapshot()
		return len(bufs) == 1
	}, time.Second, 10*time.Millisecond)
}
