package models

import "encoding/json"

// TranscriptEntry is one opaque element of a transcript as the backend sent
// it. The client never inspects entries.
type TranscriptEntry = json.RawMessage
