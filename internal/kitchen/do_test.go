package kitchen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/require"
)

const dropletsByTag = `{
  "droplets": [
    {"id": 1, "name": "default-ubuntu-2204", "networks": {"v4": [
      {"ip_address": "10.110.0.2", "type": "private"},
      {"ip_address": "203.0.113.10", "type": "public"}
    ]}},
    {"id": 2, "name": "default-debian-12", "networks": {"v4": [
      {"ip_address": "10.110.0.3", "type": "private"}
    ]}}
  ],
  "links": {},
  "meta": {"total": 2}
}`

func newTestDOClient(t *testing.T, body string) *DOClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/droplets" || r.URL.Query().Get("tag_name") != "kitchen" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer do-token" {
			http.Error(w, `{"id": "unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := NewDOClientWithBaseURL("do-token", srv.URL+"/")
	require.NoError(t, err)
	return c
}

func TestResolveTargetsWithoutTag(t *testing.T) {
	cfg := Config{Username: "kitchen", Hostname: "127.0.0.1", Port: 2222}

	targets, err := ResolveTargets(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []Target{{Name: "127.0.0.1", Config: cfg}}, targets)
}

func TestResolveTargetsByTag(t *testing.T) {
	do := newTestDOClient(t, dropletsByTag)
	cfg := Config{Username: "root", Port: 22, DropletTag: "kitchen"}

	targets, err := ResolveTargets(context.Background(), cfg, do)
	require.NoError(t, err)
	require.Len(t, targets, 1, "droplets without a public address are skipped")
	require.Equal(t, "default-ubuntu-2204", targets[0].Name)
	require.Equal(t, "ssh://root@203.0.113.10:22", targets[0].Config.URI())
}

func TestResolveTargetsNoDroplets(t *testing.T) {
	do := newTestDOClient(t, `{"droplets": [], "links": {}, "meta": {"total": 0}}`)

	_, err := ResolveTargets(context.Background(), Config{DropletTag: "kitchen"}, do)
	require.ErrorContains(t, err, "tag kitchen")

	_, err = ResolveTargets(context.Background(), Config{DropletTag: "kitchen"}, nil)
	require.Error(t, err)
}

func TestDropletPublicIPv4(t *testing.T) {
	require.Empty(t, DropletPublicIPv4(godo.Droplet{}))
	require.Equal(t, "198.51.100.7", DropletPublicIPv4(godo.Droplet{Networks: &godo.Networks{
		V4: []godo.NetworkV4{{IPAddress: "198.51.100.7", Type: "public"}},
	}}))
}

func TestNewDOClientRequiresToken(t *testing.T) {
	_, err := NewDOClient("")
	require.Error(t, err)
	_, err = NewDOClientWithBaseURL("", "http://127.0.0.1/")
	require.Error(t, err)
}
