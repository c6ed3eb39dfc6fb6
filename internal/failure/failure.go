// Package failure defines the error kinds the pipeline reports.
// Components wrap one of these with context; callers match with errors.Is.
package failure

import "errors"

var (
	// ErrFileAccess covers a missing or unreadable input and a failed output write.
	ErrFileAccess = errors.New("file access error")
	// ErrParse means the input is not a readable PDF.
	ErrParse = errors.New("parse error")
	// ErrConfiguration means a required setting, usually the API credential, is missing or invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication means the remote service rejected the credential.
	ErrAuthentication = errors.New("authentication error")
	// ErrRemoteService covers network failures and non-success responses from the model API.
	ErrRemoteService = errors.New("remote service error")
	// ErrValidation is returned in strict mode when the fields response is not the expected JSON.
	ErrValidation = errors.New("validation error")
)
