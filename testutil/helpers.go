// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds contexts returned by TestContext.
const DefaultTimeout = 10 * time.Second

// TestContext returns a context cancelled when the test ends or after
// DefaultTimeout, whichever comes first.
func TestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventuallyTrue polls condition every 5ms until it holds or timeout
// elapses. Background persistence is asserted this way.
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, condition, timeout, 5*time.Millisecond)
}
