package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/rpc"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEstimateJSON(t *testing.T) {
	out, err := run(t, "estimate", "-o", "json",
		"--transport-method", "car_gas", "--commute-distance", "20",
		"--home-type", "apartment", "--heating-type", "electric", "--electricity-source", "mostly_renewable",
		"--diet-type", "vegan", "--food-waste", "low", "--meal-ratio", "mostly_home")
	require.NoError(t, err)

	var got tracker.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 16.44, got.Emissions.Transport, 1e-9)
	assert.InDelta(t, 6.0, got.Emissions.Energy, 1e-9)
	assert.InDelta(t, 2.32, got.Emissions.Food, 1e-9)
	assert.InDelta(t, 24.76, got.Total, 1e-9)
}

func TestEstimateText(t *testing.T) {
	out, err := run(t, "estimate", "--transport-method", "cycling", "--commute-distance", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "transport")
	assert.Contains(t, out, "0.00 kg")
	assert.Contains(t, out, "kg CO2e/day")
}

func TestTipsYAML(t *testing.T) {
	out, err := run(t, "tips", "-o", "yaml", "--transport", "50", "--energy", "30", "--food", "20")
	require.NoError(t, err)

	var got struct {
		Tips []map[string]string `yaml:"tips"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Tips)
	assert.LessOrEqual(t, len(got.Tips), 3)
	for _, tip := range got.Tips {
		assert.NotEmpty(t, tip["category"])
		assert.NotEmpty(t, tip["tip"])
	}
}

func TestTipsTextForZeroEmissions(t *testing.T) {
	out, err := run(t, "tips")
	require.NoError(t, err)
	assert.Equal(t, "no tips\n", out)
}

func TestWeek(t *testing.T) {
	out, err := run(t, "week", "-o", "json", "--transport", "10", "--energy", "10", "--food", "5")
	require.NoError(t, err)

	var got struct {
		Week []map[string]any `json:"week"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Week, 7)
	assert.Equal(t, "Mon", got.Week[0]["day"])
	assert.Equal(t, "Sun", got.Week[6]["day"])
}

func TestOptions(t *testing.T) {
	out, err := run(t, "options")
	require.NoError(t, err)
	assert.Contains(t, out, "--transport-method")
	assert.Contains(t, out, "heat_pump")
}

func TestRejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "options", "-o", "xml")
	assert.Error(t, err)
}

func TestProfileNeedsRemote(t *testing.T) {
	_, err := run(t, "profile")
	assert.ErrorContains(t, err, "--remote")
}

func TestRemote(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	retry := config.RetryConfig{DatabaseMaxRetries: 3, DatabaseRetryBaseDelay: time.Millisecond}
	svc := tracker.NewService(repo, nil, retry)
	tokens := identity.NewTokenIssuer(config.TokenConfig{Secret: "cli-secret", Issuer: "ecotrace", TTL: time.Hour})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := rpc.NewGRPCServer(rpc.NewServer(svc, repo, tokens))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	addr := lis.Addr().String()

	out, err := run(t, "estimate", "-o", "json", "--remote", addr, "--diet-type", "vegan", "--food-waste", "low", "--meal-ratio", "mostly_home")
	require.NoError(t, err)
	var summary tracker.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.InDelta(t, 2.32, summary.Emissions.Food, 1e-9)

	ctx := context.Background()
	require.NoError(t, identity.EnsureUser(ctx, repo, "u1"))
	token, _, err := tokens.Issue("u1")
	require.NoError(t, err)

	out, err = run(t, "profile", "-o", "json", "--remote", addr, "--token", token)
	require.NoError(t, err)
	var d tracker.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, d.Activities.IsEmpty())
}
