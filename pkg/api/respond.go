// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "fluxstore/pkg/errors"
)

// Success sends a successful HTTP response with optional JSON data
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends an error response with consistent JSON format
func Error(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "error": message})
}

// FromError maps an application error to the corresponding HTTP response
func FromError(w http.ResponseWriter, err error) {
	var appErr *pkgerrors.AppError
	if !errors.As(err, &appErr) {
		Error(w, http.StatusInternalServerError, string(pkgerrors.ErrorTypeInternal), err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case pkgerrors.ErrorTypeValidation, pkgerrors.ErrorTypeInvalidField,
		pkgerrors.ErrorTypeTypeMismatch, pkgerrors.ErrorTypeOutOfRange:
		status = http.StatusBadRequest
	case pkgerrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case pkgerrors.ErrorTypeConflict:
		status = http.StatusConflict
	case pkgerrors.ErrorTypeDivisionByZero:
		status = http.StatusUnprocessableEntity
	case pkgerrors.ErrorTypePartialDelivery:
		status = http.StatusBadGateway
	}
	Error(w, status, string(appErr.Type), appErr.Message)
}
