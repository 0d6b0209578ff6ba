package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/domain"
)

func TestParseSplitPart(t *testing.T) {
	p, err := parseSplitPart("team-a:60")
	require.NoError(t, err)
	assert.Equal(t, "team-a", p.TeamID)
	assert.Equal(t, 60, p.Quantity)
	assert.True(t, p.PricePerUnit.IsZero())

	p, err = parseSplitPart("team-b:40:0.75")
	require.NoError(t, err)
	assert.Equal(t, "0.75", p.PricePerUnit.String())

	for _, bad := range []string{"team-a", ":10", "team:x", "team:1:abc", "a:1:2:3"} {
		_, err := parseSplitPart(bad)
		assert.Error(t, err, bad)
	}
}

func TestOrderFileOptions(t *testing.T) {
	path := t.TempDir() + "/order.json"
	require.NoError(t, writeFile(path, `{"id":"o-1","seller_id":"s-1","items":[
		{"service":"likes","target":"https://example.com/p/1","service_mode":"Human","quantity":100,"unit_price":"1.50","cost_per_unit":0.5}]}`))

	f, err := readOrderFile(path)
	require.NoError(t, err)
	opts := f.options("cli")
	assert.Equal(t, "o-1", opts.ID)
	assert.Equal(t, "cli", opts.ActorID)
	require.Len(t, opts.Items, 1)
	assert.Equal(t, domain.ServiceModeHuman, opts.Items[0].ServiceMode)
	assert.Equal(t, "1.5", opts.Items[0].UnitPrice.String())
	assert.Equal(t, "0.5", opts.Items[0].CostPerUnit.String())
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}
