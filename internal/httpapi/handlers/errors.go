package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/chat"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/upload"
)

// failChatErr maps the service error taxonomy onto the response envelope.
func failChatErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10010, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40300, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "not found")
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func failUploadErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		common.Fail(c, http.StatusRequestEntityTooLarge, 41300, err.Error())
	case errors.Is(err, upload.ErrBadType):
		common.Fail(c, http.StatusBadRequest, 10031, "invalid file type, only images, videos, audio and documents are allowed")
	default:
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to store file")
	}
}
