package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/internal/config"
	"github.com/dzexpress/shipping/internal/store"
)

// Every seeded company name must resolve to a registered adapter, or
// resolveAdapter fails at runtime for that courier.
func TestSeededCompaniesResolveInRegistry(t *testing.T) {
	logger := otelzap.New(zap.NewNop())
	registry := initCourierRegistry(&config.Config{}, logger)

	mem := store.NewMemory()
	seedCompanies(mem)

	companies, err := mem.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 11)

	for _, c := range companies {
		svc, err := registry.Get(c.Name)
		require.NoError(t, err, "company %q has no registered adapter", c.Name)
		assert.Equal(t, c.Name, svc.Name())
	}
}
