package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront/internal/service"
	"storefront/internal/util"
)

func init() {
	// Report validation failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	}
}

// bindJSON decodes the body into dest and writes a 400 on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, bindingErrors(err))
		return false
	}
	return true
}

// bindingErrors renders decoder and validator errors as {"field": ["msg"]}.
func bindingErrors(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := map[string][]string{}
		for _, fe := range verrs {
			out[fe.Field()] = append(out[fe.Field()], fieldMessage(fe))
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return map[string][]string{typeErr.Field: {fmt.Sprintf("Expected %s.", typeErr.Type)}}
	}
	return map[string][]string{"non_field_errors": {err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "len":
		return fmt.Sprintf("Ensure this field has exactly %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "numeric":
		return "Only digits are allowed."
	default:
		return fmt.Sprintf("Failed on %q validation.", fe.Tag())
	}
}

func detail(msg string) gin.H {
	return gin.H{"detail": msg}
}

// respondError maps service errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	var ve *service.ValidationError
	var gwErr *service.GatewayError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ve.Fields)
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, detail("Not found."))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, detail(service.ErrForbidden.Error()))
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, detail("Given token not valid for any token type"))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, detail(err.Error()))
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"detail":      "Payment gateway is unavailable, the checkout will be retried.",
			"checkout_id": gwErr.CheckoutID,
		})
	case errors.Is(err, service.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, detail("Payment gateway is unavailable."))
	default:
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, detail("Internal server error."))
	}
}

// pathID parses the :id route parameter and writes a 404 when malformed.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, detail("Not found."))
		return 0, false
	}
	return id, true
}
