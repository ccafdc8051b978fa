package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"attendtrack/internal/model"
)

var registerOnce sync.Once

// registerValidators adds the isodate tag and reports fields by their JSON name.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(model.DateLayout, fl.Field().String())
			return err == nil
		})
	})
}

// bindMessage turns a binding error into a client-facing message.
func bindMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve))
		for _, fe := range ve {
			switch fe.Tag() {
			case "required":
				parts = append(parts, fe.Field()+" is required")
			case "isodate":
				parts = append(parts, fe.Field()+" must be YYYY-MM-DD")
			case "oneof":
				parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
			default:
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		}
		return strings.Join(parts, "; ")
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return fmt.Sprintf("%s must be a %s", te.Field, te.Type.String())
	}
	return "invalid request body"
}
