package courier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/mock"
)

func TestRegistry_Register(t *testing.T) {
	registry := courier.NewRegistry()

	registry.Register(mock.New("test-courier"))

	got, err := registry.Get("test-courier")
	require.NoError(t, err, "courier should be registered")
	assert.Equal(t, "test-courier", got.Name())
}

func TestRegistry_Register_Override(t *testing.T) {
	registry := courier.NewRegistry()

	registry.Register(mock.New("test-courier"))
	assert.Equal(t, 1, registry.Count())

	// Register again with same name should override
	registry.Register(mock.New("test-courier"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := courier.NewRegistry()

	_, err := registry.Get("nonexistent")
	assert.Error(t, err, "should return error for unregistered courier")
	assert.True(t, errors.Is(err, courier.ErrCourierNotFound))
}

func TestRegistry_Names_Sorted(t *testing.T) {
	registry := courier.NewRegistry()

	registry.Register(mock.New("zr-express"))
	registry.Register(mock.New("yalidine"))
	registry.Register(mock.New("noest"))

	assert.Equal(t, []string{"noest", "yalidine", "zr-express"}, registry.Names())
}

func TestRegistry_Count(t *testing.T) {
	registry := courier.NewRegistry()
	assert.Equal(t, 0, registry.Count())

	registry.Register(mock.New("courier-a"))
	assert.Equal(t, 1, registry.Count())

	registry.Register(mock.New("courier-b"))
	assert.Equal(t, 2, registry.Count())
}
