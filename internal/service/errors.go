package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrDetection
	ErrBackend
	ErrConfig
	ErrValidation
	ErrUnknown
)

type ScriptError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *ScriptError {
	return &ScriptError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *ScriptError {
	return &ScriptError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *ScriptError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

func (e *ScriptError) WithContext(key string, value any) *ScriptError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrDetection:
		return "Detection"
	case ErrBackend:
		return "Backend"
	case ErrConfig:
		return "Config"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *ScriptError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(scriptErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *ScriptError) string {
	switch err.Type {
	case ErrFileNotFound:
		return "Please check that the script path is correct and the file still exists"
	case ErrFileRead:
		return "Please check file permissions to ensure read access"
	case ErrFileWrite:
		return "Please ensure the script directory is writable and the disk is not full"
	case ErrDetection:
		return "Language detection failed; the line was treated as needing translation"
	case ErrBackend:
		return "Please check that the translation backend is reachable and the model is loaded"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrValidation:
		return "Please verify the translation parameters and target language"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var scriptErr *ScriptError
	if errors.As(err, &scriptErr) {
		return scriptErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *ScriptError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute turns a panic inside fn into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
