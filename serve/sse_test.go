package serve

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStreamParsesDataFrames(t *testing.T) {
	feed := strings.Join([]string{
		`: comment line`,
		`event: message`,
		`data: {"type":"session.idle","properties":{"sessionID":"s1"}}`,
		``,
		`data: {"type":"message.part.updated",`,
		`data: "properties":{"sessionID":"s1"}}`,
		``,
	}, "\n")

	s := newEventStream(io.NopCloser(strings.NewReader(feed)))

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, eventSessionIdle, first.Type)
	assert.Equal(t, "s1", first.Properties.SessionID)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, eventPartUpdated, second.Type)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStreamSkipsMalformedPayloads(t *testing.T) {
	feed := strings.Join([]string{
		`data: this is not json`,
		``,
		`data: {"type":"session.idle"}`,
		``,
	}, "\n")

	s := newEventStream(io.NopCloser(strings.NewReader(feed)))

	record, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, eventSessionIdle, record.Type)
}

func TestEventStreamBlankLinesWithoutData(t *testing.T) {
	feed := "\n\n" + "data: {\"type\":\"session.idle\"}\n\n"

	s := newEventStream(io.NopCloser(strings.NewReader(feed)))

	record, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, eventSessionIdle, record.Type)
}
