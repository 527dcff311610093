package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

func identityFromContext(c *gin.Context) (models.Identity, bool) {
	claims := middleware.Claims(c)
	if claims == nil {
		return models.Identity{}, false
	}
	return claims.Identity(), true
}

// validationError lists the failing fields of a request payload.
func validationError(err error) error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Namespace()+":"+fe.Tag())
		}
		appErr = appErrors.WithDetail(appErr, "fields", fields)
	}
	return appErr
}

// windowFromQuery reads optional month and year query parameters.
func windowFromQuery(c *gin.Context) (models.AttendanceWindow, error) {
	var window models.AttendanceWindow
	for _, param := range []struct {
		name   string
		target **int
	}{{"month", &window.Month}, {"year", &window.Year}} {
		raw := strings.TrimSpace(c.Query(param.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return window, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, param.name+" must be a number"), param.name, raw)
		}
		*param.target = &value
	}
	return window, window.Validate()
}

// canReadStudent admits staff roles and the student reading their own records.
func canReadStudent(c *gin.Context, studentID string) bool {
	actor, ok := identityFromContext(c)
	if !ok {
		return false
	}
	return actor.Role.CanRecord() || actor.ActorID == studentID
}
