package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	snapshot := view.Snapshot()
	assert.Equal(t, "Asia/Shanghai", snapshot.Timezone)
	assert.Len(t, snapshot.Days, 5)
	assert.Equal(t, []string{"KQ.m@A"}, snapshot.Series)

	encoded, err := snapshot.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Days, decoded.Days)
	assert.Equal(t, snapshot.Columns, decoded.Columns)

	restored, err := decoded.View()
	require.NoError(t, err)
	assert.Equal(t, view.TradingDays(), restored.TradingDays())

	// The restored view answers queries identically.
	want, wantOK := view.Resolve(time.Date(2019, 12, 7, 0, 0, 0, 0, loc))
	got, gotOK := restored.Resolve(time.Date(2019, 12, 7, 0, 0, 0, 0, loc))
	require.Equal(t, wantOK, gotOK)
	assert.True(t, want.Date.Equal(got.Date))
	assert.Equal(t, want.Underlyings, got.Underlyings)
}

func TestDecodeSnapshotGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("not msgpack at all"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, SourceSnapshot, parseErr.Source)
}

func TestDecodeSnapshotShapeMismatch(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	snapshot := view.Snapshot()
	snapshot.Columns["KQ.m@A"] = snapshot.Columns["KQ.m@A"][:2]

	encoded, err := snapshot.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(encoded)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecodeSnapshotMissingColumn(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	snapshot := view.Snapshot()
	delete(snapshot.Columns, "KQ.m@A")
	snapshot.Columns["KQ.m@other"] = []string{"a", "b", "c", "d", "e"}

	encoded, err := snapshot.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(encoded)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecodeSnapshotBadTimezone(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	snapshot := view.Snapshot()
	snapshot.Timezone = "Mars/Olympus_Mons"

	encoded, err := snapshot.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(encoded)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecodeSnapshotUnorderedDays(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	snapshot := view.Snapshot()
	snapshot.Days[0], snapshot.Days[1] = snapshot.Days[1], snapshot.Days[0]

	encoded, err := snapshot.Encode()
	require.NoError(t, err)

	_, err = DecodeSnapshot(encoded)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
