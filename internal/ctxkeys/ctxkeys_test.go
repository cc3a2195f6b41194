package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSubject(ctx, "ops@bank")
	ctx = WithRole(ctx, "admin")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	sub, _ := Subject(ctx)
	assert.Equal(t, "ops@bank", sub)
	role, _ := Role(ctx)
	assert.Equal(t, "admin", role)

	_, ok = Role(WithRole(context.Background(), ""))
	assert.False(t, ok, "empty values are absent")
}
