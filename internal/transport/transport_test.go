package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
)

func TestToHTML(t *testing.T) {
	assert.Equal(t, "Hallo Max,<br><br>a &lt;b&gt; c", ToHTML("Hallo Max,\n\na <b> c"))
}

func TestResendTransport_Send(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"msg_123"}`)
	}))
	defer srv.Close()

	tr, err := NewResendTransport("re_test", "Luis <ki@example.de>", nil,
		WithBaseURL(srv.URL+"/"), WithReplyTo("ki@example.de"))
	require.NoError(t, err)

	out := tr.Send(context.Background(), "max@example.de", "Hallo", "Zeile 1\nZeile 2")
	require.True(t, out.Accepted, out.Error)
	assert.Equal(t, "msg_123", out.MessageID)

	assert.Equal(t, []string{"max@example.de"}, got.To)
	assert.Equal(t, "Luis <ki@example.de>", got.From)
	assert.Equal(t, "Zeile 1<br>Zeile 2", got.HTML)
	assert.Equal(t, "ki@example.de", got.ReplyTo)
}

func TestResendTransport_Rejected(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"invalid to"}`)
	}))
	defer srv.Close()

	tr, err := NewResendTransport("re_test", "ki@example.de", nil, WithBaseURL(srv.URL))
	require.NoError(t, err)

	out := tr.Send(context.Background(), "bad", "s", "b")
	assert.False(t, out.Accepted)
	assert.Contains(t, out.Error, "422")
	assert.Equal(t, 1, calls, "transport must not retry")
}

func TestResendTransport_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr, err := NewResendTransport("re_test", "ki@example.de", nil, WithBaseURL(url), WithTimeout(time.Second))
	require.NoError(t, err)

	out := tr.Send(context.Background(), "max@example.de", "s", "b")
	assert.False(t, out.Accepted)
	assert.NotEmpty(t, out.Error)
}

func TestNewResendTransport_Validation(t *testing.T) {
	_, err := NewResendTransport("", "ki@example.de", nil)
	assert.Error(t, err)
	_, err = NewResendTransport("key", " ", nil)
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	sender := configs.Sender{Name: "Luis Schenk", Email: "ki@example.de"}
	raw, err := BuildMessage(sender, "max@example.de", "Grüße an Hahn", "Hallo Max,\n\nBis bald", time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	assert.Equal(t, "max@example.de", msg.Header.Get("To"))
	assert.Equal(t, "ki@example.de", msg.Header.Get("Reply-To"))

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Grüße an Hahn", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types, bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		ct, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		types = append(types, ct)
		bodies = append(bodies, strings.ReplaceAll(string(b), "\r\n", "\n"))
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, types)
	assert.Equal(t, "Hallo Max,\n\nBis bald", bodies[0])
	assert.Equal(t, "Hallo Max,<br><br>Bis bald", bodies[1])
}

func TestBuildMessage_InvalidRecipient(t *testing.T) {
	_, err := BuildMessage(configs.Sender{Email: "ki@example.de"}, "not an address", "s", "b", time.Now())
	assert.Error(t, err)
}

func TestSMTPTransport_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := NewSMTPTransport(configs.SMTP{Host: "127.0.0.1", Port: port, Timeout: time.Second}, configs.Sender{Email: "ki@example.de"}, nil)
	out := tr.Send(context.Background(), "max@example.de", "s", "b")
	assert.False(t, out.Accepted)
	assert.Contains(t, out.Error, "dial")
}

// A server that never offers STARTTLS must fail the send and still see the
// connection closed.
func TestSMTPTransport_ClosesConnectionOnFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	closed := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer close(closed)

		_, _ = io.WriteString(conn, "220 fake ESMTP\r\n")
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(strings.ToUpper(line), "EHLO") {
				_, _ = io.WriteString(conn, "250-fake.local\r\n250 AUTH PLAIN\r\n")
				continue
			}
			_, _ = io.WriteString(conn, "250 ok\r\n")
		}
	}()

	cfg := configs.SMTP{
		Host:    "127.0.0.1",
		Port:    ln.Addr().(*net.TCPAddr).Port,
		UseSSL:  false,
		Timeout: 2 * time.Second,
	}
	tr := NewSMTPTransport(cfg, configs.Sender{Email: "ki@example.de"}, nil)

	out := tr.Send(context.Background(), "max@example.de", "s", "b")
	assert.False(t, out.Accepted)
	assert.Contains(t, out.Error, "STARTTLS")

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func TestLogTransport(t *testing.T) {
	out := NewLogTransport(nil).Send(context.Background(), "max@example.de", "s", "b")
	assert.True(t, out.Accepted)
	assert.True(t, strings.HasPrefix(out.MessageID, "dry-run-"))
}
