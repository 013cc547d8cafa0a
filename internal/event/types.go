package event

import "github.com/pricepilot-ai/pricepilot/pkg/types"

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	Message *types.Message `json:"message"`
}

// StreamStartedData is the data for stream.started events.
type StreamStartedData struct{}

// StreamDeltaData is the data for stream.delta events. Content is the full
// accumulated text; Delta is the token that was just appended.
type StreamDeltaData struct {
	Content string `json:"content"`
	Delta   string `json:"delta"`
}

// StreamToolData is the data for stream.tool events. An empty Tool means the
// active tool marker was cleared.
type StreamToolData struct {
	Tool string `json:"tool"`
}

// StreamFinishedData is the data for stream.finished events.
type StreamFinishedData struct {
	Message *types.Message `json:"message"`
}

// StreamFailedData is the data for stream.failed events.
type StreamFailedData struct {
	Error string `json:"error"`
}

// ConfigUpdatedData is the data for config.updated events.
type ConfigUpdatedData struct {
	Path string `json:"path"`
}
