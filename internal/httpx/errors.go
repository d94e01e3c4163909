package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors to HTTP status codes. Order matters where one
// error wraps several sentinels (a failed restore joins a persistence error).
func statusOf(err error) int {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, orders.ErrInvalidInput),
		errors.Is(err, orders.ErrInvalidAddress),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, payments.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrInactive),
		errors.Is(err, orders.ErrProductUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, orders.ErrStaleTransition),
		errors.Is(err, orders.ErrIllegalTransition),
		errors.Is(err, orders.ErrDuplicateIdempotencyKey),
		errors.Is(err, payments.ErrDuplicatePayment),
		errors.Is(err, payments.ErrIllegalTransition),
		errors.Is(err, payments.ErrOrderNotPayable):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, payments.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrPersistence), storage.IsTimeout(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it, writing 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body", Details: []string{err.Error()}})
			return false
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", fe.Field()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", fe.Field()))
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: details})
		return false
	}
	return true
}
