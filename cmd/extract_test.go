//go:build !integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/salvage"
	"github.com/crashify360/totalloss/internal/store"
)

func TestReadReply(t *testing.T) {
	text, err := readReply("", strings.NewReader("  Salvage Value: $4,200  \n"))
	require.NoError(t, err)
	assert.Contains(t, text, "Salvage Value: $4,200")

	path := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte("offer: $900"), 0o600))
	text, err = readReply(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "offer: $900", text)

	_, err = readReply("", strings.NewReader("   \n\t"))
	assert.EqualError(t, err, "reply text is empty")

	_, err = readReply(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestResolvePolicyValue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	v, err := resolvePolicyValue(ctx, env, "$18,500", "")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(18500)))

	v, err = resolvePolicyValue(ctx, env, "", "")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = resolvePolicyValue(ctx, env, "lots", "")
	assert.Error(t, err)

	ev, err := evaluateRaw(ctx, env, clientCase(), true)
	require.NoError(t, err)
	v, err = resolvePolicyValue(ctx, env, "", ev.ID)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(20000)))

	v, err = resolvePolicyValue(ctx, env, "15000", ev.ID)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(15000)))

	_, err = resolvePolicyValue(ctx, env, "", "DEC-missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))

	_, err = resolvePolicyValue(ctx, env, "15000", "DEC-missing")
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestPrintSections(t *testing.T) {
	ex := salvage.NewExtractor(salvage.DefaultConfig())

	var buf bytes.Buffer
	require.NoError(t, printSections(&buf, nil))
	assert.Contains(t, buf.String(), "No sections long enough")

	buf.Reset()
	offers := ex.ExtractSections("Yard A: our offer is $5,000 for the car.\n\nYard B: we can pay $5,800 on pickup.", decimal.NewFromInt(20000))
	require.NoError(t, printSections(&buf, offers))
	assert.Contains(t, buf.String(), "Section 1: Yard A")
	assert.Contains(t, buf.String(), "Section 2: Yard B")
}
