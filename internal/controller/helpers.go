package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrPaymentMethodNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrPluginNotFound, http.StatusNotFound, "plugin_not_found"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domainErrors.ErrPluginUnavailable, http.StatusServiceUnavailable, "plugin_unavailable"},
	{domainErrors.ErrPluginTimeout, http.StatusGatewayTimeout, "plugin_timeout"},
	{domainErrors.ErrDuplicateTransaction, http.StatusInternalServerError, "duplicate_transaction"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.status >= http.StatusInternalServerError {
				log.Error().Err(err).Msg("request failed")
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// validateQuery runs the struct's validation tags and reports the first
// failing field.
func validateQuery(dst any) error {
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("query", err.Error())
	}
	return nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domainErrors.NewValidationError(name, "must be a boolean")
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainErrors.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

// pluginProperties reads repeated pluginProperty=key=value parameters.
func pluginProperties(r *http.Request) ([]payment.PluginProperty, error) {
	raw := r.URL.Query()["pluginProperty"]
	props := make([]payment.PluginProperty, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, domainErrors.NewValidationError("pluginProperty", "must be key=value")
		}
		props = append(props, payment.PluginProperty{Key: key, Value: value})
	}
	return props, nil
}

func parseViewOptions(r *http.Request) (service.ViewOptions, error) {
	var opts service.ViewOptions
	var err error
	if opts.WithPluginInfo, err = queryBool(r, "withPluginInfo"); err != nil {
		return opts, err
	}
	if opts.WithAttempts, err = queryBool(r, "withAttempts"); err != nil {
		return opts, err
	}
	if opts.Properties, err = pluginProperties(r); err != nil {
		return opts, err
	}
	return opts, nil
}

func parsePageQuery(r *http.Request) (PageQuery, error) {
	var q PageQuery
	var err error
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(r, "limit", defaultPageLimit); err != nil {
		return q, err
	}
	if q.WithPluginInfo, err = queryBool(r, "withPluginInfo"); err != nil {
		return q, err
	}
	return q, validateQuery(q)
}
