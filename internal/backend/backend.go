// Package backend declares the asynchronous operations the generation
// backend exposes and the error type shared by every implementation.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"contractgen/pkg/contractapi"
)

// Service is the full set of remote operations. The HTTP client and the
// local engine both implement it.
type Service interface {
	ListTemplates(ctx context.Context) ([]contractapi.Template, error)
	GetTemplate(ctx context.Context, id string) (contractapi.Template, error)
	CreateTemplate(ctx context.Context, t contractapi.Template) (contractapi.Template, error)
	UpdateTemplate(ctx context.Context, id string, t contractapi.Template) (contractapi.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	// UploadTemplateAsset stores a template document and returns the asset
	// reference to embed in the template.
	UploadTemplateAsset(ctx context.Context, filename string, r io.Reader) (string, error)

	FetchResolvedData(ctx context.Context, templateID string, params map[string]string) (contractapi.ResolvedData, error)
	GenerateContract(ctx context.Context, templateID string, params map[string]string, force bool) (contractapi.GenerateResult, error)
	FetchGenerationHistory(ctx context.Context, templateID string, params map[string]string) ([]contractapi.Instance, error)
	// ListActiveContracts returns active instances, optionally restricted to
	// one template when templateID is non-empty.
	ListActiveContracts(ctx context.Context, templateID string) ([]contractapi.Instance, error)

	DownloadTemplateAsset(ctx context.Context, templateID string) (Download, error)
	// DownloadGeneratedContract fetches a generated document. Version 0 means
	// the active version for the hash.
	DownloadGeneratedContract(ctx context.Context, templateID, hash string, version int) (Download, error)
}

// Download is a fetched document.
type Download struct {
	Name        string
	ContentType string
	Data        []byte
}

// ErrNotFound matches any backend error reporting a missing resource.
var ErrNotFound = errors.New("backend: not found")

// Error is a transport or domain failure. Message is surfaced to users
// verbatim.
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports 404 errors as ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// NotFound builds a 404 error for op.
func NotFound(op, message string) *Error {
	return &Error{Op: op, Status: http.StatusNotFound, Message: message}
}

// Invalid builds a 400 error for op.
func Invalid(op, message string) *Error {
	return &Error{Op: op, Status: http.StatusBadRequest, Message: message}
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) && be.Status != 0 {
		return be.Status
	}
	return http.StatusInternalServerError
}
