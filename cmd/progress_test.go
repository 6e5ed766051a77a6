package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawldir/internal/crawler"
)

func TestProgressDisabledForNonTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := newProgressConfig(&buf, false)
	require.False(t, cfg.Enabled)

	p := newProgressRecorder(cfg, "uploading")
	require.Nil(t, p)
	require.NoError(t, p.Record(context.Background(), crawler.Outcome{}))
	p.Finish()
}

func TestProgressCountsOutcomes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newProgressRecorder(progressConfig{Enabled: true, Writer: &buf}, "uploading")
	require.NotNil(t, p)

	require.NoError(t, p.Record(context.Background(), crawler.Outcome{Status: crawler.StatusUploaded}))
	require.NoError(t, p.Record(context.Background(), crawler.Outcome{Status: crawler.StatusFailed}))
	require.Equal(t, 1, p.failed)
	p.Finish()
	require.NotEmpty(t, buf.String())
}
