package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/http/middleware"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type UserHandler struct {
	userService  services.UserService
	usageService services.UsageService
}

func NewUserHandler(userService services.UserService, usageService services.UsageService) *UserHandler {
	return &UserHandler{userService: userService, usageService: usageService}
}

// GET /api/me
func (uh *UserHandler) GetMe(c *gin.Context) {
	me, err := uh.userService.Me(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// GET /api/usage
func (uh *UserHandler) GetUsage(c *gin.Context) {
	usage, err := uh.usageService.Peek(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	middleware.SetQuotaHeaders(c, usage)
	response.RespondOK(c, gin.H{"usage": usage})
}
