// internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"pos-sync-service/internal/model"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// respondServiceError maps service errors onto the codes the cashier UI
// reacts to.
func respondServiceError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, repository.ErrStorage):
		utils.CodedErrorResponse(c, http.StatusInternalServerError, utils.CodeLocalStorage, message, err)
	case errors.Is(err, model.ErrInvalidOrder):
		utils.CodedErrorResponse(c, http.StatusBadRequest, utils.CodeInvalidOrder, message, err)
	case errors.Is(err, service.ErrOffline):
		utils.CodedErrorResponse(c, http.StatusServiceUnavailable, utils.CodeOffline, message, err)
	case errors.Is(err, service.ErrNotSyncOwner):
		utils.CodedErrorResponse(c, http.StatusConflict, utils.CodeNotSyncOwner, message, err)
	case errors.Is(err, repository.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
	case errors.Is(err, service.ErrStopped):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	default:
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}

// respondBindingError reports request binding failures field by field
func respondBindingError(c *gin.Context, err error) {
	fields := make(map[string]string)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fe := range validationErrs {
			fields[fe.Field()] = fe.Tag()
		}
	} else {
		fields["body"] = err.Error()
	}

	utils.ValidationErrorResponse(c, fields)
}
