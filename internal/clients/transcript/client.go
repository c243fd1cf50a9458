// internal/clients/transcript/client.go
package transcript

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transcript-client/internal/common/errors"
	remote "transcript-client/internal/common/http"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/common/observability"
	"transcript-client/internal/common/validation"
	"transcript-client/internal/models"
)

var responseSchema = validation.MustValidator(validation.TranscriptResponseSchema)

type Client struct {
	remote Executor
	logger logger.Logger
	obs    Recorder
}

func NewClient(remote Executor, log logger.Logger, obs Recorder) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Client{
		remote: remote,
		logger: log.Named("transcript"),
		obs:    obs,
	}
}

// FetchTranscript returns the entries for locator in backend order. Entries
// are not inspected. Failures are logged and returned as *errors.StandardError
// whose Error() is the text to show the user.
func (c *Client) FetchTranscript(ctx context.Context, locator string) (entries []models.TranscriptEntry, err error) {
	start := time.Now()
	defer func() {
		c.obs.RecordTranscriptFetch(ctx, resultLabel(err), time.Since(start))
	}()

	out := c.remote.Execute(ctx, remote.Request{
		Method:          http.MethodGet,
		Target:          c.remote.BuildTarget(Path, url.Values{QueryParam: {locator}}),
		FallbackMessage: FallbackMessage,
	})
	if !out.OK() {
		return nil, c.fail(locator, out.Failure)
	}

	if res := responseSchema.Validate(out.Payload); !res.Valid {
		return nil, c.fail(locator, errors.NewMalformedResponseError(
			"Unexpected transcript payload from backend", res.Summary()))
	}

	if err := json.Unmarshal(out.Payload, &entries); err != nil {
		return nil, c.fail(locator, errors.NewMalformedResponseError(
			"Unexpected transcript payload from backend", err.Error()))
	}

	c.logger.Debug("transcript fetched", map[string]interface{}{
		"locator": locator,
		"entries": len(entries),
	})
	return entries, nil
}

func (c *Client) fail(locator string, failure *errors.StandardError) error {
	c.logger.Error("error fetching transcript", map[string]interface{}{
		"locator":   locator,
		"errorCode": string(failure.Code),
		"message":   failure.Message,
		"retryable": failure.Retryable,
		"details":   failure.Details,
	})
	return failure
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(errors.CodeOf(err)))
}
