// internal/clients/transcript/models.go
package transcript

import (
	"context"
	"net/url"
	"time"

	remote "transcript-client/internal/common/http"
)

// Executor is the part of the remote client this package needs.
type Executor interface {
	BuildTarget(path string, query url.Values) string
	Execute(ctx context.Context, req remote.Request) remote.Outcome
}

// Recorder receives one observation per settled fetch.
type Recorder interface {
	RecordTranscriptFetch(ctx context.Context, result string, duration time.Duration)
}
