// internal/clients/transcript/config.go
package transcript

const (
	// Path is the backend route serving transcripts.
	Path = "transcript"
	// QueryParam carries the resource locator.
	QueryParam = "url"
	// FallbackMessage is shown when the backend rejects without an error text.
	FallbackMessage = "Failed to fetch transcript from backend"
)
