package domain

import "time"

// Role identifies the author of a message turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn in a session. Messages are immutable once appended;
// editing is modeled as re-populating the compose input, never as mutation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Images holds inline image payloads in data-URL form, in attachment order.
	Images []string `json:"images,omitempty"`
}

// Session is a titled, ordered conversation. Messages are ordered by
// insertion and never reordered; LastMessage/LastUpdated mirror the tail.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	LastMessage string    `json:"lastMessage,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// GenerateOptions carries the per-call generation knobs forwarded to the
// remote model. Nil pointer fields mean "service default".
type GenerateOptions struct {
	Temperature        *float32 `json:"temperature,omitempty"`
	TopP               *float32 `json:"topP,omitempty"`
	TopK               *float32 `json:"topK,omitempty"`
	MaxOutputTokens    int32    `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
}

// Configuration is the singleton remote-service record: credential, model
// selection and generation options. It is read before every remote call and
// mutated only through an explicit save.
type Configuration struct {
	ID             string           `json:"id"`
	APIKey         string           `json:"apiKey"`
	ModelName      string           `json:"modelName"`
	GenerateConfig *GenerateOptions `json:"generateConfig,omitempty"`
}

// ConfigurationKey is the primary key of the single logical configuration.
const ConfigurationKey = "default"

// DefaultModelName is used when a saved configuration names no model.
const DefaultModelName = "gemini-2.0-flash-exp-image-generation"

// UserRecord is a local account. Passwords are stored and compared as
// plaintext; hardening local credentials is an explicit non-goal.
type UserRecord struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

// Command is a reusable prompt snippet, ranked by how often it was used.
type Command struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	UseCount  int       `json:"useCount"`
}

// AuthState is the durable "remember me" record read at startup to bypass
// the login screen.
type AuthState struct {
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// LogLevel classifies a diagnostic log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is a process-lifetime diagnostic record. Entries live in memory
// only and are never persisted.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}
