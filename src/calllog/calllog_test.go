package calllog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxgate-labs/voxgate-ai/src/session"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCallLogHeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)

	w.CallStart("CA1", "inbound", "stream MZ1")
	w.CallEnd("CA1", "inbound", 90*time.Second, 4)

	rows := readCSV(t, filepath.Join(dir, "call_logs.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, callLogHeader, rows[0])
	assert.Equal(t, "CA1", rows[1][1])
	assert.Equal(t, "start", rows[1][3])
	assert.Equal(t, "end", rows[2][3])
	assert.Contains(t, rows[2][4], "turns=4")
}

func TestConversationLog(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)

	w.Turn("CA1", session.SpeakerCaller, "I have a leaking tap")
	w.Turn("CA1", session.SpeakerBot, "I can help with that")

	rows := readCSV(t, filepath.Join(dir, "conversation_logs.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, session.SpeakerCaller, rows[1][2])
	assert.Equal(t, "I have a leaking tap", rows[1][3])
}

func TestExportSessionFollowupFlag(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)

	// Details collected but no confirmed booking: needs follow-up.
	sess := session.New("CA1", session.DirectionInbound, session.Config{})
	sess.UpdateSlot("name", "Asha")
	sess.UpdateSlot("service_type", "plumbing")
	w.ExportSession(sess)

	// Confirmed booking: no follow-up.
	sess2 := session.New("CA2", session.DirectionInbound, session.Config{})
	sess2.UpdateSlot("name", "Ravi")
	sess2.UpdateSlot("booking_status", "confirmed")
	w.ExportSession(sess2)

	// Nothing collected at all: no follow-up either.
	sess3 := session.New("CA3", session.DirectionInbound, session.Config{})
	w.ExportSession(sess3)

	rows := readCSV(t, filepath.Join(dir, "customer_data.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, customerDataHeader, rows[0])

	followup := len(customerDataHeader) - 1
	assert.Equal(t, "yes", rows[1][followup])
	assert.Equal(t, "no", rows[2][followup])
	assert.Equal(t, "no", rows[3][followup])
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	_, err := New(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
