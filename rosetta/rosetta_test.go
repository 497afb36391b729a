// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package rosetta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubClient struct {
	chainID       uint8
	chainIDErr    error
	ledgerVersion uint64

	healthErr   error
	healthCalls []uint64
}

func (c *stubClient) ChainID(ctx context.Context) (uint8, error) {
	return c.chainID, c.chainIDErr
}

func (c *stubClient) HealthCheck(ctx context.Context, durationSecs uint64) error {
	c.healthCalls = append(c.healthCalls, durationSecs)
	return c.healthErr
}

func (c *stubClient) LedgerVersion(ctx context.Context) (uint64, error) {
	return c.ledgerVersion, nil
}

func bootstrapTestServer(t *testing.T, chainID uint8, client Client) *Server {
	t.Helper()
	srv, err := Bootstrap(context.Background(), chainID, Config{Address: "127.0.0.1:0"}, client)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func get(t *testing.T, srv *Server, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.Addr(), path))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestBootstrapVerifiesChainID(t *testing.T) {
	_, err := Bootstrap(context.Background(), 1, Config{Address: "127.0.0.1:0"}, &stubClient{chainID: 2})
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain id mismatch")

	client := &stubClient{chainID: 1}
	srv := bootstrapTestServer(t, 1, client)
	require.NotNil(t, srv)
}

func TestBootstrapPropagatesClientFailure(t *testing.T) {
	client := &stubClient{chainIDErr: errors.New("connection refused")}
	_, err := Bootstrap(context.Background(), 1, Config{Address: "127.0.0.1:0"}, client)
	require.Error(t, err)
}

func TestHealthyDelegatesToClient(t *testing.T) {
	client := &stubClient{chainID: 1}
	srv := bootstrapTestServer(t, 1, client)

	status, body := get(t, srv, "/-/healthy")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "aptos-node:ok", body["message"])
	require.Equal(t, []uint64{HealthCheckDefaultSecs}, client.healthCalls)

	status, _ = get(t, srv, "/-/healthy?duration_secs=60")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(60), client.healthCalls[1])

	// Malformed input is the caller's fault, not an upstream failure.
	status, body = get(t, srv, "/-/healthy?duration_secs=bogus")
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["error"], "duration_secs")
}

func TestHealthySurfacesStaleNode(t *testing.T) {
	client := &stubClient{chainID: 1, healthErr: errors.New("ledger is stale")}
	srv := bootstrapTestServer(t, 1, client)

	status, body := get(t, srv, "/-/healthy")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["error"], "stale")
}

func TestOfflineMode(t *testing.T) {
	// No client at all: bootstrap succeeds, node-backed calls fail.
	srv := bootstrapTestServer(t, 1, nil)

	status, body := get(t, srv, "/-/healthy")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Contains(t, body["error"], "offline")

	status, _ = get(t, srv, "/network/status")
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestNetworkStatus(t *testing.T) {
	client := &stubClient{chainID: 4, ledgerVersion: 99}
	srv := bootstrapTestServer(t, 4, client)

	status, body := get(t, srv, "/network/status")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(4), body["chain_id"])
	require.Equal(t, float64(99), body["ledger_version"])
	require.Equal(t, RosettaVersion, body["rosetta_version"])
}

func TestCORSHeaders(t *testing.T) {
	srv := bootstrapTestServer(t, 1, &stubClient{chainID: 1})

	req, err := http.NewRequest(http.MethodOptions, fmt.Sprintf("http://%s/-/healthy", srv.Addr()), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
