package protocol

import "encoding/json"

// Envelope is the inbound request sent by the extension.
type Envelope struct {
	HostName string          `json:"hostName"`
	Payload  json.RawMessage `json:"payload"`
}

// ErrorReply reports a failed request back to the extension.
type ErrorReply struct {
	Error string `json:"error"`
}

// RawReply wraps child output that is not a JSON document.
type RawReply struct {
	Response string `json:"response"`
}

// HostEntry is one record of the hosts file, keyed by host name.
// Description and AllowedOrigins are only consulted at install time.
type HostEntry struct {
	ScriptPath     string   `json:"scriptPath"`
	Interpreter    string   `json:"interpreter,omitempty"`
	Description    string   `json:"description,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// Manifest is the descriptor the browser reads to discover a native host.
type Manifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// ManifestTypeStdio is the only transport the broker speaks.
const ManifestTypeStdio = "stdio"

// Management message types
const (
	TypeInstall   = "install"
	TypeUninstall = "uninstall"
	TypeStatus    = "status"
	TypeList      = "list"
	TypeResult    = "result"
)

// HostSpec is a full host definition as supplied by the management app.
type HostSpec struct {
	HostName       string   `json:"hostName"`
	Description    string   `json:"description"`
	ScriptPath     string   `json:"scriptPath"`
	Interpreter    string   `json:"interpreter,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// ManageRequest is sent by the management app over the websocket.
type ManageRequest struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	HostName  string    `json:"hostName,omitempty"`
	Host      *HostSpec `json:"host,omitempty"`
}

// HostStatus is one row of a list result.
type HostStatus struct {
	HostName  string `json:"hostName"`
	Installed bool   `json:"installed"`
}

// ManageResult answers exactly one ManageRequest.
type ManageResult struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
	Success   bool         `json:"success"`
	Message   string       `json:"message,omitempty"`
	Path      string       `json:"path,omitempty"`
	Installed *bool        `json:"installed,omitempty"`
	Hosts     []HostStatus `json:"hosts,omitempty"`
}
