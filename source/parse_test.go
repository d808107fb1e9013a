package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/source"
)

// =============================================================================
// FEED PARSING TESTS
// =============================================================================

func TestParseFeed_NestedEventRows(t *testing.T) {
	// GIVEN: A feed with eventRow elements nested below the root
	// WHEN: Parsing
	// THEN: Every row is found regardless of depth, fields keyed by name

	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<data>
  <events>
    <eventRow>
      <p_start>2025-11-03T08:00:00</p_start>
      <p_end>2025-11-03T17:00:00</p_end>
      <p_plg>M1</p_plg>
      <p_allday>false</p_allday>
    </eventRow>
    <eventRow>
      <p_start>2025-11-04</p_start>
      <p_cod>CP</p_cod>
      <p_lib>Cong&#233; pay&#233;</p_lib>
    </eventRow>
  </events>
</data>`)

	records, err := source.ParseFeed(payload)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "M1", records[0]["p_plg"])
	assert.Equal(t, "false", records[0]["p_allday"])
	assert.Equal(t, "CP", records[1]["p_cod"])
	assert.Equal(t, "Congé payé", records[1]["p_lib"])
}

func TestParseFeed_EmptyPayload(t *testing.T) {
	// GIVEN: An empty (or whitespace-only) payload
	// WHEN: Parsing
	// THEN: No records and no error; absence of data is not a failure

	for _, payload := range [][]byte{nil, []byte(""), []byte("  \n\t")} {
		records, err := source.ParseFeed(payload)
		require.NoError(t, err)
		assert.Empty(t, records)
	}
}

func TestParseFeed_NoEventRows(t *testing.T) {
	records, err := source.ParseFeed([]byte(`<data><meta>nothing here</meta></data>`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFeed_MalformedDocument(t *testing.T) {
	// GIVEN: A structurally broken document
	// WHEN: Parsing
	// THEN: The error wraps the parse sentinel

	_, err := source.ParseFeed([]byte(`<data><eventRow><p_start>2025`))
	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrParse)
}

func TestParseFeed_FeedsNormalizer(t *testing.T) {
	// GIVEN: A parsed schedule row
	// WHEN: Normalizing it
	// THEN: The raw field names line up with the normalizer's expectations

	payload := []byte(`<data><eventRow>
		<p_start>2025-11-03T08:00:00</p_start>
		<p_end>2025-11-03T17:00:00</p_end>
		<p_plg>M1</p_plg>
		<p_allday>false</p_allday>
		<p_tpm>9h</p_tpm>
	</eventRow></data>`)

	records, err := source.ParseFeed(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)

	ev := planning.Normalize(records[0], planning.KindWorkSchedule)
	require.NotNil(t, ev.Start)
	assert.Equal(t, "HORAIRE-2025-11-03T08:00:00-M1", ev.UniqueID())
	assert.Equal(t, "9h", ev.DurationText)
	assert.False(t, ev.AllDay)
}
