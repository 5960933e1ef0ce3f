/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes bounded JSON bodies strictly and maps every failure to an errs.CustomError,
so handlers can respond without inspecting decoder errors themselves.
*/
package req

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"dmchat/internal/pkg/errs"
)

// MaxJSONBodyBytes bounds JSON request bodies. Profile pictures may arrive inline as
// data URLs, so the limit is generous.
const MaxJSONBodyBytes int64 = 16 << 20

// BindJSON decodes the JSON request body into dst.
// Unknown fields, trailing content and oversized bodies are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
