package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestSessions_StreamPushesViews(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + sessionPath("/stream")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() (viewJSON, error) {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return viewJSON{}, err
		}
		var v viewJSON
		return v, json.Unmarshal(payload, &v)
	}

	first, err := read()
	require.NoError(t, err)
	require.True(t, strings.EqualFold(owner, first.Owner))

	body, _ := json.Marshal(map[string]any{"borrow": "7"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, srv.URL+sessionPath("/draft"), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for {
		v, err := read()
		require.NoError(t, err)
		if v.Draft.Borrow == "7" {
			break
		}
	}

	s.registry.Close()
	for {
		if _, err = read(); err != nil {
			break
		}
	}
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
