package domain

import "errors"

var (
	// ErrNoSession is returned when an action requires a selected session
	// and none is selected.
	ErrNoSession = errors.New("no session selected")
	// ErrEmptyMessage is returned when a send carries neither text nor images.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrEmptyTitle is returned when a rename carries a blank title.
	ErrEmptyTitle = errors.New("title is empty")
	// ErrNoContent is returned when the remote call succeeded but produced
	// neither text nor image output.
	ErrNoContent = errors.New("no content in model response")
	// ErrInvalidConfig is returned when a configuration lacks a credential.
	ErrInvalidConfig = errors.New("configuration is missing an API key")
	// ErrNotInitialized is returned when the remote client has not been
	// initialized in this process lifetime.
	ErrNotInitialized = errors.New("remote service not initialized")
	// ErrModelDeprecated wraps the remote condition that the selected model
	// is no longer served.
	ErrModelDeprecated = errors.New("the selected model has been deprecated, switch to another model (e.g. gemini-1.5-flash) in settings")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned on registration with a taken username.
	ErrUserExists = errors.New("username already exists")
	// ErrBadCredentials is returned on a failed login.
	ErrBadCredentials = errors.New("invalid username or password")
)
