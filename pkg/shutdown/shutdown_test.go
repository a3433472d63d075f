package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	var order []string
	m := NewManager()
	for _, name := range []string{"store", "db", "http"} {
		name := name
		m.OnShutdown(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "db", "store"}, order)

	// 第二次调用没有回调
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownReturnsFirstError(t *testing.T) {
	m := NewManager()
	ran := false
	m.OnShutdown("a", func(ctx context.Context) error { ran = true; return nil })
	m.OnShutdown("b", func(ctx context.Context) error { return errors.New("b failed") })
	m.OnShutdown("c", func(ctx context.Context) error { return errors.New("c failed") })

	err := m.Shutdown(context.Background())
	assert.EqualError(t, err, "c failed")
	assert.True(t, ran)
}
