package pages_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhayashi-dev/prodtrack/internal/pages"
	"github.com/mhayashi-dev/prodtrack/internal/testutil"
)

func TestLogBundleObserver(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	var buf bytes.Buffer
	svc := pages.NewService(engine, pages.NewLogBundleObserver(&buf))

	_, err := svc.FetchDistributePage(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "page_bundle")
	assert.Contains(t, out, "bundle=distribute_page")
	assert.Contains(t, out, "success=true")
}

func TestNewLogBundleObserver_NilWriter(t *testing.T) {
	obs := pages.NewLogBundleObserver(nil)
	assert.NotPanics(t, func() {
		obs.ObserveBundle(context.Background(), pages.BundleEvent{Name: "x"})
	})
}
