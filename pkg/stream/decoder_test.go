package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsdigest/pkg/domain"
)

const sampleStream = `{"type":"meta","owner_id":7,"owner_username":"ana","owner_is_visible":true}
{"type":"partial_articles","articles":[{"url":"https://www.ziua.ro/a1","title":"Primăria aprobă bugetul","source":"Ziua","date_str":"2026-10-15","relevance_score":8,"scores":{"topic":9,"date":10,"is_fresh":true},"ai_verdict":"VERIFIED"}]}
{"type":"ping"}
{"type":"log","message":"scraping 3 outlets"}
{"type":"partial_digest","digest":"## Politics\nCouncil approved the budget."}
{"type":"partial_analysis","analysis_source":[{"word":"Emil Boc","importance":95,"type":"Person","sentiment":"Positive","source_urls":["https://www.ziua.ro/a1"]}],"analysis_digest":[]}
{"type":"partial_articles","articles":[{"url":"u2","title":"T2","ai_verdict":{"is_topic_match":false,"confidence":0.9,"reasoning":"sports"}}]}
{"type":"done"}`

func TestDecoder_Feed(t *testing.T) {
	var warnings []error
	dec := NewDecoder(WithWarn(func(_ []byte, err error) { warnings = append(warnings, err) }))

	events := dec.Feed([]byte(sampleStream))
	require.Len(t, events, 7, "last line has no terminator and stays buffered")
	assert.Equal(t, len(`{"type":"done"}`), dec.Buffered())

	events = append(events, dec.Flush()...)
	require.Len(t, events, 8)
	assert.Empty(t, warnings)

	types := make([]EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventMeta, EventPartialArticles, EventPing, EventLog, EventPartialDigest,
		EventPartialAnalysis, EventPartialArticles, EventDone}, types)

	assert.Equal(t, domain.Owner{ID: 7, Username: "ana", Visible: true}, events[0].Owner())

	a := events[1].Articles[0]
	assert.Equal(t, "https://www.ziua.ro/a1", a.URL)
	assert.Equal(t, "ziua.ro", a.Origin())
	assert.Equal(t, domain.VerdictTagged, a.Verdict.Kind)
	assert.True(t, a.Verdict.Verified())
	require.NotNil(t, a.Scores)
	require.NotNil(t, a.Scores.IsFresh)
	assert.True(t, *a.Scores.IsFresh)

	assert.Equal(t, "scraping 3 outlets", events[3].Message)
	assert.Equal(t, "## Politics\nCouncil approved the budget.", events[4].Digest)
	assert.Equal(t, "Emil Boc", events[5].Analysis().Source[0].Word)

	b := events[6].Articles[0]
	assert.Equal(t, domain.VerdictAssessed, b.Verdict.Kind)
	assert.False(t, b.Verdict.Verified())
	assert.InDelta(t, 0.9, b.Verdict.Assessment.Confidence, 0.0001)
}

func TestDecoder_ChunkBoundaries(t *testing.T) {
	whole := NewDecoder()
	expected := append(whole.Feed([]byte(sampleStream)), whole.Flush()...)

	t.Run("one byte chunks", func(t *testing.T) {
		dec := NewDecoder()
		var got []Event
		for i := 0; i < len(sampleStream); i++ {
			got = append(got, dec.Feed([]byte{sampleStream[i]})...)
		}
		got = append(got, dec.Flush()...)
		assert.Equal(t, expected, got)
	})

	t.Run("uneven chunks", func(t *testing.T) {
		dec := NewDecoder()
		var got []Event
		for i := 0; i < len(sampleStream); i += 7 {
			end := min(i+7, len(sampleStream))
			got = append(got, dec.Feed([]byte(sampleStream[i:end]))...)
		}
		got = append(got, dec.Flush()...)
		assert.Equal(t, expected, got)
	})

	t.Run("crlf terminators", func(t *testing.T) {
		dec := NewDecoder()
		got := dec.Feed([]byte(strings.ReplaceAll(sampleStream, "\n", "\r\n")))
		got = append(got, dec.Flush()...)
		assert.Equal(t, expected, got)
	})
}

func TestDecoder_MalformedLines(t *testing.T) {
	var dropped []string
	var reasons []error
	dec := NewDecoder(WithWarn(func(line []byte, err error) {
		dropped = append(dropped, string(line))
		reasons = append(reasons, err)
	}))

	input := "{\"type\":\"ping\"}\n" +
		"{\"type\":\"partial_articles\",\"articles\":[{\"url\":\n" + // truncated json
		"\n" + // blank, skipped silently
		"{\"articles\":[]}\n" + // no type
		"{\"type\":\"progress\"}\n" + // unknown type
		"[1,2,3]\n" + // not an object
		"{\"type\":\"done\"}\n"

	events := dec.Feed([]byte(input))
	events = append(events, dec.Flush()...)

	require.Len(t, events, 2)
	assert.Equal(t, EventPing, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)

	require.Len(t, dropped, 4)
	assert.Equal(t, `{"articles":[]}`, dropped[1])
	assert.ErrorIs(t, reasons[1], ErrMissingType)
	assert.ErrorIs(t, reasons[2], ErrUnknownType)
}

func TestDecoder_LineTooLong(t *testing.T) {
	var reasons []error
	dec := NewDecoder(WithMaxLineSize(32), WithWarn(func(_ []byte, err error) { reasons = append(reasons, err) }))

	events := dec.Feed([]byte(`{"type":"log","message":"` + strings.Repeat("x", 40)))
	assert.Empty(t, events)
	events = dec.Feed([]byte(`tail"}` + "\n" + `{"type":"ping"}` + "\n"))
	require.Len(t, events, 1, "rest of the oversized line is skipped, next line decoded")
	assert.Equal(t, EventPing, events[0].Type)
	require.Len(t, reasons, 1)
	assert.ErrorIs(t, reasons[0], ErrLineTooLong)
}

func TestDecoder_FlushEmpty(t *testing.T) {
	dec := NewDecoder()
	assert.Len(t, dec.Feed([]byte("{\"type\":\"ping\"}\n")), 1)
	assert.Zero(t, dec.Buffered())
	assert.Empty(t, dec.Flush())
}

func TestReader_Next(t *testing.T) {
	t.Run("reads all events lazily", func(t *testing.T) {
		r := NewReader(iotest.OneByteReader(strings.NewReader(sampleStream)), nil, 0)
		var got []EventType
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			got = append(got, ev.Type)
		}
		assert.Len(t, got, 8)
		assert.Equal(t, EventDone, got[7])

		_, err := r.Next()
		assert.ErrorIs(t, err, io.EOF, "stays at EOF")
	})

	t.Run("read error after events", func(t *testing.T) {
		src := io.MultiReader(strings.NewReader("{\"type\":\"ping\"}\n"), iotest.ErrReader(errors.New("connection reset")))
		r := NewReader(src, nil, 4)
		ev, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, EventPing, ev.Type)

		_, err = r.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}
