// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 上下文与错误码断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertErrorCode(t, err, types.ErrCancelled)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentgraph/types"
)

// TestContext 返回带超时的测试上下文，测试结束时自动取消
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertErrorCode 断言 err 非空且携带给定的 types.ErrorCode
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %s but got nil", code)
		return
	}
	if got := types.GetErrorCode(err); got != code {
		t.Errorf("expected error code %s, got %q (%v)", code, got, err)
	}
}
