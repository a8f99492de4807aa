package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/imago/api/defined/v1/event"
	"github.com/omalloc/imago/api/defined/v1/request"
)

func TestRequestEventsPublished(t *testing.T) {
	payload := makePNG(t, 4, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	completed := make(chan RequestEvent, 1)
	require.NoError(t, event.Subscribe(TopicRequestCompleted, func(_ context.Context, ev RequestEvent) {
		select {
		case completed <- ev:
		default:
		}
	}))

	p, err := New(Options{})
	require.NoError(t, err)

	req, err := request.NewBuilderWithSource(mustURI(t, srv.URL+"/ev.png")).Build()
	require.NoError(t, err)

	res, err := p.Fetch(context.Background(), req)
	require.NoError(t, err)

	select {
	case ev := <-completed:
		assert.Equal(t, res.RequestID, ev.RequestID)
		assert.Equal(t, request.LevelFullFetch, ev.Level)
		assert.Same(t, req, ev.Request)
	case <-time.After(5 * time.Second):
		t.Fatal("completion event not observed")
	}
}

func TestSubscribeUnknownTopic(t *testing.T) {
	missing := event.NewTopicKey[RequestEvent]("request.never-published")
	err := event.Subscribe(missing, func(context.Context, RequestEvent) {})
	assert.Error(t, err)
}
