package pipeline

import (
	"github.com/omalloc/imago/api/defined/v1/event"
	"github.com/omalloc/imago/api/defined/v1/request"
)

// RequestEvent is the payload published on every lifecycle transition.
type RequestEvent struct {
	RequestID string
	Request   *request.ImageRequest
	// Level is set on completion: the stage that produced the result.
	Level request.RequestLevel
	Err   error
}

var (
	TopicRequestStarted   = event.NewTopicKey[RequestEvent]("request.started")
	TopicRequestCompleted = event.NewTopicKey[RequestEvent]("request.completed")
	TopicRequestFailed    = event.NewTopicKey[RequestEvent]("request.failed")

	publishStarted   = event.NewPublish[RequestEvent](TopicRequestStarted)
	publishCompleted = event.NewPublish[RequestEvent](TopicRequestCompleted)
	publishFailed    = event.NewPublish[RequestEvent](TopicRequestFailed)
)
