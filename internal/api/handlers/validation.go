package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/thanhnp/chain-relation/internal/chain"
	"github.com/thanhnp/chain-relation/internal/search"
)

var registerOnce sync.Once

// RegisterValidators adds the chainaddr tag to gin's validator. It accepts any
// string that is a valid address on one of the supported chains.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("chainaddr", func(fl validator.FieldLevel) bool {
			_, _, err := chain.Resolve(fl.Field().String())
			return err == nil
		})
	})
}

// statusFor maps search errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidAddress),
		errors.Is(err, search.ErrChainMismatch),
		errors.Is(err, search.ErrHopBudgetTooLarge),
		errors.Is(err, search.ErrChainNotSupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
