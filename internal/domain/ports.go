package domain

import "context"

// GeneratedReply is the normalized form of a remote model response: the
// response text (possibly empty) and any inline image parts.
type GeneratedReply struct {
	Text   string
	Images []ImagePayload
}

// GenerativeModel is a ready-to-call handle on the remote service, built
// from the current configuration's model identifier and generation options.
type GenerativeModel interface {
	Generate(ctx context.Context, prompt string, images []ImagePayload) (*GeneratedReply, error)
}

// ModelProvider hands out the current model handle. It fails with
// ErrNotInitialized until a configuration has been supplied in this process
// lifetime.
type ModelProvider interface {
	CurrentModel() (GenerativeModel, error)
}
