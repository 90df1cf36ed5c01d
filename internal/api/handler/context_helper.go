package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, "user_id")
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, "role")
}

// MustGetCaller 组装 Service 层使用的调用方身份
func MustGetCaller(c *gin.Context) (service.Caller, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Caller{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{UserID: userID, Role: role}, true
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// handleCommonError 处理跨模块通用错误，未命中时返回 false
func handleCommonError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrValidationFailed):
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, 10003, "无权操作该资源")
	case errors.Is(err, service.ErrStorageUnavailable):
		response.ServiceUnavailable(c, 50300, "存储暂不可用，请稍后重试")
	default:
		return false
	}
	return true
}
