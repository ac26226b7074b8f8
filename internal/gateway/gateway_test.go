package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nros/internal/config"
	"nros/internal/pubsub"
)

// fakeBridge implements Bridge without a bus.
type fakeBridge struct {
	nodes     []string
	published map[string][]byte
	callErr   error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		nodes:     []string{"clock", "sonar"},
		published: make(map[string][]byte),
	}
}

func (f *fakeBridge) Nodes(ctx context.Context) ([]string, error) {
	return f.nodes, nil
}

func (f *fakeBridge) Describe(ctx context.Context, node string) (*pubsub.Description, error) {
	if node != "clock" {
		return nil, fmt.Errorf("describe %s: %w", node,
			dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"})
	}
	return &pubsub.Description{
		Name:     "nros.clock",
		Topics:   []string{"clock/tick"},
		Services: []string{"now"},
	}, nil
}

func (f *fakeBridge) Publish(topic string, payload []byte) (string, error) {
	f.published[topic] = payload
	return "msg-id-1", nil
}

func (f *fakeBridge) Call(ctx context.Context, node, service string, request []byte) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return []byte(`{"echo":true}`), nil
}

func newTestServer(bridge Bridge) *httptest.Server {
	s := New(config.GatewayConfig{Listen: "127.0.0.1:0"}, bridge)
	return httptest.NewServer(s.Handler())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(newFakeBridge())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestListNodes(t *testing.T) {
	ts := newTestServer(newFakeBridge())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/nodes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.JSONEq(t, `{"nodes":["clock","sonar"]}`, body)
}

func TestDescribeNode(t *testing.T) {
	ts := newTestServer(newFakeBridge())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/nodes/clock")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`{"name":"nros.clock","topics":["clock/tick"],"services":["now"]}`,
		readBody(t, resp))
}

func TestDescribeUnknownNodeIs404(t *testing.T) {
	ts := newTestServer(newFakeBridge())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/nodes/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublish(t *testing.T) {
	bridge := newFakeBridge()
	ts := newTestServer(bridge)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/topics/clock/tick", "application/json",
		strings.NewReader(`{"n":7}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"topic":"clock/tick","id":"msg-id-1"}`, readBody(t, resp))

	// The topic keeps its slashes, minus the route prefix
	assert.Equal(t, []byte(`{"n":7}`), bridge.published["clock/tick"])
}

func TestCallService(t *testing.T) {
	ts := newTestServer(newFakeBridge())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/nodes/clock/services/now", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"echo":true}`, readBody(t, resp))
}

func TestCallUnknownServiceIs404(t *testing.T) {
	bridge := newFakeBridge()
	bridge.callErr = fmt.Errorf("call now on clock: %w",
		dbus.Error{Name: pubsub.ErrUnknownService})
	ts := newTestServer(bridge)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/nodes/clock/services/now", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallTimeoutIs504(t *testing.T) {
	bridge := newFakeBridge()
	bridge.callErr = fmt.Errorf("call now on clock: %w", context.DeadlineExceeded)
	ts := newTestServer(bridge)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/nodes/clock/services/now", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestStatusForBusError(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusForBusError(errors.New("boom")))
	assert.Equal(t, http.StatusNotFound,
		statusForBusError(dbus.Error{Name: "org.freedesktop.DBus.Error.NameHasNoOwner"}))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
