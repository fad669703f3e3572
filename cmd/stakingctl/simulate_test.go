package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/config"
)

func simConfig() *config.Config {
	cfg := config.Default()
	cfg.Staking.Owner = simOwner.Hex()
	return cfg
}

func TestRunSimulation_DefaultScenario(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runSimulation(context.Background(), &out, simConfig(), defaultSteps))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(defaultSteps)+1)
	assert.NotContains(t, out.String(), "rejected")

	// Withdrawing 500 on day 10 is inside the 30 day lock: 5% penalty.
	assert.Contains(t, lines[3], "penalty 25")
	assert.Equal(t, "25", strings.Fields(lines[3])[7])
	// Everything is out after withdraw-all, and the lock had elapsed by then.
	last := strings.Fields(lines[len(lines)-1])
	assert.Equal(t, "withdraw-all", last[1])
	assert.Equal(t, "penalty", last[2])
	assert.Equal(t, "0", last[3])
	assert.Equal(t, "0", last[4])
}

func TestRunSimulation_ReportsRejections(t *testing.T) {
	var out bytes.Buffer
	steps := []string{"stake:1", "withdraw:5", "penalty:20000"}
	require.NoError(t, runSimulation(context.Background(), &out, simConfig(), steps))

	assert.Contains(t, out.String(), "stake amount below minimum")
	assert.Contains(t, out.String(), "insufficient stake")
	assert.Contains(t, out.String(), "penalty above 100%")
}

func TestRunSimulation_MalformedStep(t *testing.T) {
	var out bytes.Buffer
	err := runSimulation(context.Background(), &out, simConfig(), []string{"teleport"})
	assert.Error(t, err)

	err = runSimulation(context.Background(), &out, simConfig(), []string{"advance:soon"})
	assert.Error(t, err)
}

func TestParseSimDuration(t *testing.T) {
	d, err := parseSimDuration("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	d, err = parseSimDuration("1.5d")
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, d)

	d, err = parseSimDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}
