package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"

	// Interception errors
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeGeneration ErrorType = "generation"
	ErrorTypeProceed    ErrorType = "proceed"

	// System errors
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error codes for specific scenarios
const (
	CodeInvalidConfig          = "INVALID_CONFIG"
	CodeRequiredField          = "REQUIRED_FIELD"
	CodeConflictingSortOrder   = "CONFLICTING_SORT_ORDER"
	CodeUnknownInstance        = "UNKNOWN_PLUGIN_INSTANCE"
	CodeInvalidGeneratedName   = "INVALID_GENERATED_TYPE_NAME"
	CodeUnsupportedSignature   = "UNSUPPORTED_SIGNATURE"
	CodeSubjectNotFound        = "SUBJECT_NOT_FOUND"
	CodeProceedCalledTwice     = "PROCEED_CALLED_TWICE"
	CodeChainDescriptorMissing = "CHAIN_DESCRIPTOR_MISSING"
)

var (
	// ErrPluginResolution matches every resolution error with errors.Is.
	ErrPluginResolution = New(ErrorTypeResolution, "plugin resolution failed")

	// ErrInvalidGeneratedTypeName matches generated type names violating the naming convention.
	ErrInvalidGeneratedTypeName = New(ErrorTypeGeneration, "invalid generated type name").
		WithCode(CodeInvalidGeneratedName)

	// ErrGeneration matches every generation error with errors.Is.
	ErrGeneration = New(ErrorTypeGeneration, "interceptor generation failed")

	// ErrProceedCalledTwice is returned by a proceed continuation invoked more than once.
	ErrProceedCalledTwice = New(ErrorTypeProceed, "proceed called more than once").
		WithCode(CodeProceedCalledTwice)

	// ErrConfiguration matches every configuration error with errors.Is.
	ErrConfiguration = New(ErrorTypeConfiguration, "invalid interception configuration")
)

// AppError represents a structured interception error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InnerError error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.InnerError != nil {
		return msg + ": " + e.InnerError.Error()
	}
	return msg
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithCode adds a code to the error
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// Is matches on error type, and on code when the target carries a
// code more specific than its type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	if t.Code == "" || t.Code == string(t.Type) {
		return true
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Message:    err.Error(),
		InnerError: err,
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// NewConfiguration reports an invalid configuration value.
func NewConfiguration(message string) *AppError {
	return New(ErrorTypeConfiguration, message).WithCode(CodeInvalidConfig)
}

// NewRequired reports a missing configuration field.
func NewRequired(field string) *AppError {
	return New(ErrorTypeConfiguration, fmt.Sprintf("%s is required", field)).
		WithCode(CodeRequiredField).
		WithDetail("field", field)
}

// NewResolution reports an inconsistent plugin configuration found while resolving a chain.
func NewResolution(code, message string) *AppError {
	return New(ErrorTypeResolution, message).WithCode(code)
}

// NewConflictingSortOrder reports one plugin key declared twice in a scope with different sort orders.
func NewConflictingSortOrder(scope, key string, first, second int) *AppError {
	return NewResolution(CodeConflictingSortOrder,
		fmt.Sprintf("plugin %q declared twice in scope %q with sort orders %d and %d", key, scope, first, second)).
		WithDetail("scope", scope).
		WithDetail("plugin", key)
}

// NewUnknownInstance reports a descriptor whose instance ref cannot be located.
func NewUnknownInstance(key, ref string) *AppError {
	return NewResolution(CodeUnknownInstance,
		fmt.Sprintf("plugin %q references unknown instance %q", key, ref)).
		WithDetail("plugin", key).
		WithDetail("instance", ref)
}

// NewGeneration reports a failure to generate an interceptor.
func NewGeneration(code, message string) *AppError {
	return New(ErrorTypeGeneration, message).WithCode(code)
}

// NewInvalidGeneratedTypeName reports a generated name differing from the convention.
func NewInvalidGeneratedTypeName(got, want string) *AppError {
	return NewGeneration(CodeInvalidGeneratedName,
		fmt.Sprintf("invalid interceptor type name [%s], use %s", got, want)).
		WithDetail("got", got).
		WithDetail("want", want)
}

// NewProceedCalledTwice reports a second proceed call from the same around hook.
func NewProceedCalledTwice(plugin, method string) *AppError {
	return New(ErrorTypeProceed, fmt.Sprintf("plugin %q called proceed more than once for %s", plugin, method)).
		WithCode(CodeProceedCalledTwice).
		WithDetail("plugin", plugin).
		WithDetail("method", method)
}

// NewInternal reports a broken invariant inside the engine.
func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message)
}

// ErrorFormatter renders errors on one line for command output. Collected
// errors are rendered one after another.
type ErrorFormatter struct {
	showInner bool
}

// NewErrorFormatter creates a new error formatter
func NewErrorFormatter(showInner bool) *ErrorFormatter {
	return &ErrorFormatter{showInner: showInner}
}

// Format formats an error as a string
func (f *ErrorFormatter) Format(err error) string {
	if err == nil {
		return ""
	}

	var chain *ErrorChain
	if errors.As(err, &chain) && len(chain.errors) > 1 {
		parts := make([]string, len(chain.errors))
		for i, e := range chain.errors {
			parts[i] = f.Format(e)
		}
		return strings.Join(parts, "\n")
	}

	appErr := FromError(err)

	message := appErr.Message
	if message == "" {
		message = string(appErr.Type)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", appErr.Type, message))

	if appErr.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", appErr.Code))
	}

	for _, k := range sortedKeys(appErr.Details) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, appErr.Details[k]))
	}

	if f.showInner && appErr.InnerError != nil {
		parts = append(parts, "caused_by: "+appErr.InnerError.Error())
	}

	return strings.Join(parts, " | ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrorChain collects independent errors, e.g. every invalid scope entry.
type ErrorChain struct {
	errors []*AppError
}

// NewErrorChain creates a new error chain
func NewErrorChain() *ErrorChain {
	return &ErrorChain{
		errors: make([]*AppError, 0),
	}
}

// Add adds an error to the chain
func (c *ErrorChain) Add(err *AppError) *ErrorChain {
	if err != nil {
		c.errors = append(c.errors, err)
	}
	return c
}

// HasErrors checks if the chain has errors
func (c *ErrorChain) HasErrors() bool {
	return len(c.errors) > 0
}

// Error returns the combined error message
func (c *ErrorChain) Error() string {
	if !c.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range c.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, " | ")
}

// Errors returns all errors in the chain
func (c *ErrorChain) Errors() []*AppError {
	return c.errors
}

// HasType checks if the chain has an error of the specified type
func (c *ErrorChain) HasType(errType ErrorType) bool {
	for _, err := range c.errors {
		if err.Type == errType {
			return true
		}
	}
	return false
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (c *ErrorChain) Unwrap() []error {
	out := make([]error, len(c.errors))
	for i, err := range c.errors {
		out[i] = err
	}
	return out
}

// ErrOrNil returns the chain as an error, or nil when empty.
func (c *ErrorChain) ErrOrNil() error {
	if !c.HasErrors() {
		return nil
	}
	return c
}
