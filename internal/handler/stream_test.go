package handler

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/realtime"
	"github.com/setlistvote/setlistvote/internal/service"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code service.Code
		want int
	}{
		{service.CodeRateLimited, 429},
		{service.CodeQuotaExceeded, 429},
		{service.CodeConflict, 409},
		{service.CodeNotFound, 404},
		{service.CodeForbidden, 403},
		{service.CodeInvalidRequest, 400},
		{service.CodeTransient, 503},
		{service.Code("SOMETHING_ELSE"), 503},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.code), string(tt.code))
	}
}

func TestWriteEventVoteUpdate(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := WriteEvent(w, model.Event{
		Type:  model.EventVoteUpdate,
		Topic: realtime.SetlistTopic("sl-1"),
		Vote:  &model.VoteUpdate{SongID: "song-1", SetlistSongID: "ss-1", SetlistID: "sl-1", VoteCount: 4, Version: 7},
	})
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t,
		"id: 7\nevent: vote_update\ndata: "+
			`{"songId":"song-1","setlistSongId":"ss-1","setlistId":"sl-1","voteCount":4,"version":7,"trendingFactor":0}`+
			"\n\n",
		buf.String())
}

func TestWriteEventShowUpdate(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := WriteEvent(w, model.Event{
		Type: model.EventShowUpdate,
		Show: &model.ShowUpdate{ShowID: "show-1", TotalVotes: 3, ActiveVoters: 2},
	})
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.NotContains(t, out, "id:")
	assert.True(t, strings.HasPrefix(out, "event: show_update\ndata: {"), out)
	assert.Contains(t, out, `"totalVotes":3`)
}

func TestPumpFramesEventsAndHeartbeats(t *testing.T) {
	hub := realtime.NewHub(clockwork.NewRealClock(), time.Minute, 4)
	defer hub.Close()

	stream, err := hub.Open(context.Background(), realtime.ShowTopic("show-1"))
	require.NoError(t, err)

	hub.Publish(model.Event{
		Type:  model.EventShowUpdate,
		Topic: realtime.ShowTopic("show-1"),
		Show:  &model.ShowUpdate{ShowID: "show-1", TotalVotes: 1},
	})

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err = Pump(ctx, stream, w, 30*time.Millisecond, 2*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "retry: 2000\n\n"), out)
	assert.Contains(t, out, "event: show_update\n")
	assert.Contains(t, out, ": ping\n\n")
}

func TestPumpEndsWhenStreamCloses(t *testing.T) {
	hub := realtime.NewHub(clockwork.NewRealClock(), time.Minute, 4)
	stream, err := hub.Open(context.Background(), realtime.SetlistTopic("sl-1"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- Pump(context.Background(), stream, bufio.NewWriter(&bytes.Buffer{}), time.Second, 0)
	}()
	hub.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, realtime.ErrHubClosed)
	case <-time.After(time.Second):
		t.Fatal("Pump did not return after the hub closed")
	}
}
