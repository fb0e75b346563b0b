package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/users"
)

func (h *Handler) Register(c *gin.Context) {
	var nu users.NewUser
	if !h.bindJSON(c, &nu) {
		return
	}
	resp, err := h.s.Users.Register(c.Request.Context(), nu)
	if err != nil {
		respondError(c, err, "an error occurred during registration")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var cred users.Credentials
	if !h.bindJSON(c, &cred) {
		return
	}
	resp, err := h.s.Users.Login(c.Request.Context(), cred)
	if err != nil {
		respondError(c, err, "an error occurred during login")
		return
	}
	c.JSON(http.StatusOK, resp)
}
