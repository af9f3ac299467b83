package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	rewardTypePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
	userIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

	registerOnce sync.Once
	registerErr  error
)

// registerValidations adds the ledger's custom tags to gin's validator.
// The result of the first call is returned to every caller.
func registerValidations() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("register validations: unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		registerErr = registerTags(v)
	})
	return registerErr
}

func registerTags(v *validator.Validate) error {
	tags := map[string]*regexp.Regexp{
		"rewardtype": rewardTypePattern,
		"userid":     userIDPattern,
	}
	for tag, pattern := range tags {
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return pattern.MatchString(fl.Field().String())
		})
		if err != nil {
			return fmt.Errorf("register %s validation: %w", tag, err)
		}
	}
	return nil
}

// fieldErrors flattens validation failures into "field: tag" pairs for logs
// and 400 bodies. Other errors (malformed JSON) yield nil.
func fieldErrors(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return out
}
