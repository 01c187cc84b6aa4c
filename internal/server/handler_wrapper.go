// Adapts typed handler functions to net/http.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/server/dto"
)

// MaxRequestBodyBytes caps request bodies. Images travel base64 encoded inside
// JSON, so this bounds uploads to roughly 12MiB.
const MaxRequestBodyBytes = 16 << 20

// Wrap wraps a handler function to work as an http.Handler.
//
// The request body is decoded as JSON into In, then fields tagged
// `path:"name"` and `query:"name"` are populated from the URL and the request
// is validated before fn is called. Errors implementing
// [apierrors.ErrorWithStatus] set the response status; anything else is a 500.
//
// Example:
//
//	type GetPostRequest struct {
//	    ID string `path:"id"`
//	}
//
//	func (h *PostHandler) GetPost(ctx context.Context, req *GetPostRequest) (*Response, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err, http.StatusBadRequest, apierrors.ErrValidationFailed)
			return
		}
		output, err := fn(ctx, PtrIn(input))
		if err != nil {
			var ews apierrors.ErrorWithStatus
			if !errors.As(err, &ews) {
				err = apierrors.InternalWithError("internal error", err)
			}
			writeError(ctx, w, err, http.StatusInternalServerError, apierrors.ErrInternal)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(output); err != nil {
			slog.ErrorContext(ctx, "Failed to encode response", "err", err, "req", RequestID(ctx))
		}
	})
}

// readAndDecodeBody reads the size limited body and decodes it into input.
// It reports false when an error response was written.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apiErr := apierrors.NewAPIError(http.StatusRequestEntityTooLarge, apierrors.ErrValidationFailed, "request body too large").WithDetail("limit", maxErr.Limit)
			writeError(ctx, w, apiErr, 0, "")
			return false
		}
		writeError(ctx, w, apierrors.BadRequest("failed to read request body").Wrap(err), 0, "")
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			writeError(ctx, w, apierrors.BadRequest("invalid request body").Wrap(err), 0, "")
			return false
		}
	}
	return true
}

// populatePathParams sets string fields tagged `path:"name"` from the route.
func populatePathParams(r *http.Request, input any) {
	elem := structElem(input)
	if !elem.IsValid() {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" || field.Type.Kind() != reflect.String {
			continue
		}
		if v := r.PathValue(tag); v != "" {
			elem.Field(i).SetString(v)
		}
	}
}

// populateQueryParams sets fields tagged `query:"name"` from the query string.
func populateQueryParams(r *http.Request, input any) {
	elem := structElem(input)
	if !elem.IsValid() {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		v := query.Get(tag)
		if v == "" {
			continue
		}
		fv := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fv.SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				fv.SetInt(int64(n))
			}
		default:
			if u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
				_ = u.UnmarshalText([]byte(v))
			}
		}
	}
}

func structElem(input any) reflect.Value {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return val.Elem()
}

// writeError writes err as a JSON error response. Errors without a status use
// the given fallback status and code.
func writeError(ctx context.Context, w http.ResponseWriter, err error, status int, code apierrors.ErrorCode) {
	details := map[string]any{}
	var ews apierrors.ErrorWithStatus
	if errors.As(err, &ews) {
		status = ews.StatusCode()
		code = ews.Code()
		if d := ews.Details(); len(d) != 0 {
			details = d
		}
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "status", status, "code", code, "req", RequestID(ctx))
		// Do not leak file system paths to clients.
		if ews != nil {
			msg = ews.Message()
		} else {
			msg = "internal error"
		}
	} else {
		slog.InfoContext(ctx, "Request rejected", "err", err, "status", status, "code", code, "req", RequestID(ctx))
	}
	writeErrorResponse(w, status, code, msg, details)
}

func writeErrorResponse(w http.ResponseWriter, status int, code apierrors.ErrorCode, msg string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: string(code), Message: msg},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
