package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/crypto"
)

type recordingSender struct {
	name   string
	events []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, event, _ string) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := New([]Sender{a, b}, nil, discardLogger())

	n.Notify(context.Background(), "bond_matured", "bond b1 matured")

	assert.Equal(t, []string{"bond_matured"}, a.events)
	assert.Equal(t, []string{"bond_matured"}, b.events)
}

func TestNotifyFiltersEvents(t *testing.T) {
	a := &recordingSender{name: "a"}
	n := New([]Sender{a}, []string{"bond_defaulted"}, discardLogger())

	n.Notify(context.Background(), "bond_matured", "ignored")
	n.Notify(context.Background(), "bond_defaulted", "delivered")

	assert.Equal(t, []string{"bond_defaulted"}, a.events)
}

func TestNotifyContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := New([]Sender{bad, good}, nil, discardLogger())

	n.Notify(context.Background(), "bond_matured", "msg")

	assert.Len(t, good.events, 1, "failure in one sender must not stop the rest")
}

func TestWebhookSenderSignsPayload(t *testing.T) {
	auth := &crypto.WebhookAuth{Secret: "shared"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "bond_matured", payload["event"])

		ok := auth.Verify(
			r.Header.Get("X-IPBond-Event"),
			string(body),
			r.Header.Get("X-IPBond-Timestamp"),
			r.Header.Get("X-IPBond-Signature"),
		)
		assert.True(t, ok, "signature must verify with the shared secret")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "shared")
	require.NoError(t, s.Send(context.Background(), "bond_matured", "bond b1 matured"))
}
