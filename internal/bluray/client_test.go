package bluray

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedReply struct {
	status int
	body   []byte
}

// fakePlayer answers CGI posts with canned bodies keyed by command token
type fakePlayer struct {
	t *testing.T

	mu       sync.Mutex
	replies  map[string]cannedReply
	fallback cannedReply
	tokens   []string
	headers  []http.Header
}

func newFakePlayer(t *testing.T) *fakePlayer {
	return &fakePlayer{
		t:        t,
		replies:  make(map[string]cannedReply),
		fallback: cannedReply{status: http.StatusOK, body: []byte("00,\"\",1")},
	}
}

func (f *fakePlayer) reply(token, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[token] = cannedReply{status: http.StatusOK, body: []byte(body)}
}

func (f *fakePlayer) replyRaw(token string, status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[token] = cannedReply{status: status, body: body}
}

func (f *fakePlayer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakePlayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != Endpoint {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	token := tokenFromForm(f.t, string(body))

	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.headers = append(f.headers, r.Header.Clone())
	rep, ok := f.replies[token]
	if !ok {
		rep = f.fallback
	}
	f.mu.Unlock()

	w.WriteHeader(rep.status)
	w.Write(rep.body)
}

func tokenFromForm(t *testing.T, body string) string {
	values, err := url.ParseQuery(body)
	require.NoError(t, err)
	for key := range values {
		if strings.HasSuffix(key, ".x") {
			return strings.TrimSuffix(strings.TrimPrefix(key, "cCMD_"), ".x")
		}
	}
	t.Fatalf("no command in form body %q", body)
	return ""
}

func newTestClient(t *testing.T, player http.Handler, key string) *Client {
	srv := httptest.NewServer(player)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := New(Config{Host: host, Port: port, PlayerKey: key, Timeout: 2 * time.Second})
	t.Cleanup(c.Close)
	return c
}

// unreachableClient points at a port nothing listens on
func unreachableClient(t *testing.T) *Client {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return New(Config{Host: "127.0.0.1", Port: port, Timeout: time.Second})
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{Host: "192.168.1.100"})
	assert.Equal(t, "192.168.1.100", c.Host())
	assert.Equal(t, PlayerTypeAuto, c.PlayerType())
	assert.Equal(t, "http://192.168.1.100:80/WAN/dvdr/dvdr_ctrl.cgi", c.url())

	c = New(Config{Host: "192.168.1.100", Port: 8080})
	assert.Equal(t, "http://192.168.1.100:8080/WAN/dvdr/dvdr_ctrl.cgi", c.url())
}

func TestSendRequestHeadersAndForm(t *testing.T) {
	player := newFakePlayer(t)
	c := newTestClient(t, player, "testkey123")

	_, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)

	require.Len(t, player.headers, 1)
	h := player.headers[0]
	assert.Equal(t, UserAgent, h.Get("User-Agent"))
	assert.Equal(t, "testkey123", h.Get(PlayerKeyHeader))
	assert.Equal(t, "application/x-www-form-urlencoded", h.Get("Content-Type"))
	assert.Equal(t, []string{"PST"}, player.seen())
}

func TestSendRequestNoKeyHeader(t *testing.T) {
	player := newFakePlayer(t)
	c := newTestClient(t, player, "")

	_, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Empty(t, player.headers[0].Get(PlayerKeyHeader))
}

func TestSendRequestReplies(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status ReplyStatus
		fields []string
	}{
		{"data line", "00,\"OK\",1\r\n0,100,200", ReplyOK, []string{"0", "100", "200"}},
		{"no data line", "00,\"OK\",1", ReplyOK, nil},
		{"fe error", "FE,\"Error\",0", ReplyError, nil},
		{"non 00 code", "01,\"Error\",0", ReplyError, nil},
		{"empty", "", ReplyError, nil},
		{"whitespace", "   \r\n   ", ReplyError, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := newFakePlayer(t)
			player.reply("PST", tt.body)
			c := newTestClient(t, player, "")

			reply, err := c.probe(context.Background(), probeBasic)
			require.NoError(t, err)
			assert.Equal(t, tt.status, reply.Status)
			assert.Equal(t, tt.fields, reply.Fields)
		})
	}
}

func TestSendRequestGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("00,\"\",1\r\n1,42,0"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	player := newFakePlayer(t)
	player.replyRaw("PST", http.StatusOK, buf.Bytes())
	c := newTestClient(t, player, "")

	reply, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Equal(t, ReplyOK, reply.Status)
	assert.Equal(t, []string{"1", "42", "0"}, reply.Fields)
}

func TestSendRequestBadGzip(t *testing.T) {
	player := newFakePlayer(t)
	player.replyRaw("PST", http.StatusOK, []byte{0x1f, 0x8b, 0x00, 0x01, 0x02})
	c := newTestClient(t, player, "")

	reply, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Equal(t, ReplyError, reply.Status)
}

func TestSendRequestLatin1(t *testing.T) {
	player := newFakePlayer(t)
	// 0xe9 is "é" in Latin-1 and invalid as a lone UTF-8 byte
	player.replyRaw("PST", http.StatusOK, []byte("00,\"caf\xe9\",1\r\n2,10"))
	c := newTestClient(t, player, "")

	reply, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Equal(t, ReplyOK, reply.Status)
	assert.Equal(t, []string{"2", "10"}, reply.Fields)
}

func TestSendRequestHTTPErrors(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			player := newFakePlayer(t)
			player.replyRaw("PST", code, nil)
			c := newTestClient(t, player, "")

			_, err := c.probe(context.Background(), probeBasic)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCannotConnect))

			var ce *ConnectError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, code, ce.StatusCode)
		})
	}
}

func TestSendRequestUnreachable(t *testing.T) {
	c := unreachableClient(t)
	reply, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Equal(t, ReplyOff, reply.Status)
	assert.Nil(t, reply.Fields)
}

func TestSendRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	c := newTestClient(t, srv, "")
	c.timeout = 50 * time.Millisecond
	defer close(release)

	reply, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.Equal(t, ReplyOff, reply.Status)
}

func TestSessionRecreatedAfterClose(t *testing.T) {
	player := newFakePlayer(t)
	c := newTestClient(t, player, "")

	_, err := c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	first := c.session
	require.NotNil(t, first)

	c.Close()
	assert.Nil(t, c.session)

	_, err = c.probe(context.Background(), probeBasic)
	require.NoError(t, err)
	assert.NotNil(t, c.session)
	assert.NotSame(t, first, c.session)
}

func TestRequestsAreSerialized(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		io.WriteString(w, "00,\"\",1\r\n1,5")
	})
	c := newTestClient(t, srv, "")
	c.SetPlayerType(PlayerTypeUHD)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetPlayStatus(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestTestConnection(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("PST", "00,\"\",1\r\n0,0")
		c := newTestClient(t, player, "")
		assert.True(t, c.TestConnection(context.Background()))
		assert.Equal(t, []string{"PST"}, player.seen())
	})
	t.Run("application error", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("PST", "FE,\"\",0")
		c := newTestClient(t, player, "")
		assert.False(t, c.TestConnection(context.Background()))
	})
	t.Run("unreachable passes", func(t *testing.T) {
		c := unreachableClient(t)
		assert.True(t, c.TestConnection(context.Background()))
	})
	t.Run("not found fails", func(t *testing.T) {
		player := newFakePlayer(t)
		player.replyRaw("PST", http.StatusNotFound, nil)
		c := newTestClient(t, player, "")
		assert.False(t, c.TestConnection(context.Background()))
	})
}

func TestDetectPlayerType(t *testing.T) {
	t.Run("bd via extended status", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("GET_STATUS", "00,\"\",1\r\n2,0,0,0,0")
		c := newTestClient(t, player, "")

		pt, err := c.DetectPlayerType(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PlayerTypeBD, pt)
		assert.Equal(t, PlayerTypeBD, c.PlayerType())
		assert.Equal(t, []string{"GET_STATUS"}, player.seen())
	})
	t.Run("uhd via basic error", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("GET_STATUS", "FE,\"\",0")
		player.reply("PST", "FE,\"\",0")
		c := newTestClient(t, player, "")

		pt, err := c.DetectPlayerType(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PlayerTypeUHD, pt)
		assert.Equal(t, []string{"GET_STATUS", "PST"}, player.seen())
	})
	t.Run("bd compatible via basic ok", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("GET_STATUS", "00,\"\",1")
		player.reply("PST", "00,\"\",1\r\n0,0")
		c := newTestClient(t, player, "")

		pt, err := c.DetectPlayerType(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PlayerTypeBD, pt)
	})
	t.Run("unreachable stays auto", func(t *testing.T) {
		c := unreachableClient(t)
		pt, err := c.DetectPlayerType(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PlayerTypeAuto, pt)
	})
	t.Run("not found propagates", func(t *testing.T) {
		player := newFakePlayer(t)
		player.replyRaw("GET_STATUS", http.StatusNotFound, nil)
		c := newTestClient(t, player, "")

		_, err := c.DetectPlayerType(context.Background())
		assert.ErrorIs(t, err, ErrCannotConnect)
	})
}

func TestSendCommand(t *testing.T) {
	t.Run("every command maps to RC token", func(t *testing.T) {
		player := newFakePlayer(t)
		c := newTestClient(t, player, "")

		for _, cmd := range Commands() {
			res, err := c.SendCommand(context.Background(), strings.ToLower(cmd))
			require.NoError(t, err)
			assert.True(t, res.Success, cmd)
		}
		seen := player.seen()
		require.Len(t, seen, len(Commands()))
		for i, cmd := range Commands() {
			assert.Equal(t, "RC_"+cmd, seen[i])
		}
	})
	t.Run("unknown command makes no request", func(t *testing.T) {
		player := newFakePlayer(t)
		c := newTestClient(t, player, "")

		res, err := c.SendCommand(context.Background(), "NOT_A_REAL_COMMAND")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Unknown command")
		assert.Empty(t, player.seen())
	})
	t.Run("error infers uhd", func(t *testing.T) {
		player := newFakePlayer(t)
		player.reply("RC_POWER", "FE,\"\",0")
		c := newTestClient(t, player, "")

		res, err := c.SendCommand(context.Background(), "POWER")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Command failed", res.Error)
		assert.Equal(t, PlayerTypeUHD, c.PlayerType())
	})
	t.Run("success infers bd once", func(t *testing.T) {
		player := newFakePlayer(t)
		c := newTestClient(t, player, "")

		res, err := c.SendCommand(context.Background(), "PLAYBACK")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, PlayerTypeBD, c.PlayerType())

		player.reply("RC_STOP", "FE,\"\",0")
		_, err = c.SendCommand(context.Background(), "STOP")
		require.NoError(t, err)
		assert.Equal(t, PlayerTypeBD, c.PlayerType())
	})
	t.Run("known type is not overwritten", func(t *testing.T) {
		player := newFakePlayer(t)
		c := newTestClient(t, player, "")
		c.SetPlayerType(PlayerTypeUHD)

		res, err := c.SendCommand(context.Background(), "PAUSE")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, PlayerTypeUHD, c.PlayerType())
	})
	t.Run("unreachable", func(t *testing.T) {
		c := unreachableClient(t)
		res, err := c.SendCommand(context.Background(), "POWER")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Device is off or unreachable", res.Error)
		assert.Equal(t, PlayerTypeAuto, c.PlayerType())
	})
	t.Run("not found propagates", func(t *testing.T) {
		player := newFakePlayer(t)
		player.replyRaw("RC_POWER", http.StatusNotFound, nil)
		c := newTestClient(t, player, "")

		res, err := c.SendCommand(context.Background(), "POWER")
		assert.ErrorIs(t, err, ErrCannotConnect)
		assert.False(t, res.Success)
	})
}
