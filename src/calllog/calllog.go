// Package calllog appends call telemetry to CSV files: one row per call
// event, per dialogue turn, and per exported customer record.
package calllog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

const (
	callLogFile         = "call_logs.csv"
	conversationLogFile = "conversation_logs.csv"
	customerDataFile    = "customer_data.csv"
)

var (
	callLogHeader         = []string{"timestamp", "call_sid", "direction", "event", "detail"}
	conversationLogHeader = []string{"timestamp", "call_sid", "speaker", "text"}
	customerDataHeader    = []string{
		"timestamp", "call_sid", "name", "phone", "service_type", "urgency",
		"property_type", "location", "preferred_date", "preferred_time",
		"booking_status", "needs_followup",
	}
)

// Writer appends telemetry rows. One mutex covers all three files; bridges
// and status callbacks write concurrently.
type Writer struct {
	mu  sync.Mutex
	dir string
	log *logger.Logger
}

// New creates the log directory if needed and returns a writer.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Writer{dir: dir, log: logger.WithPrefix("CallLog")}, nil
}

// CallStart records a call beginning.
func (w *Writer) CallStart(callSID, direction, detail string) {
	w.append(callLogFile, callLogHeader, []string{now(), callSID, direction, "start", detail})
}

// CallEnd records a call ending with its duration and turn count.
func (w *Writer) CallEnd(callSID, direction string, duration time.Duration, turns int) {
	detail := fmt.Sprintf("duration=%s turns=%d", duration.Round(time.Second), turns)
	w.append(callLogFile, callLogHeader, []string{now(), callSID, direction, "end", detail})
}

// CallStatus records a provider status callback.
func (w *Writer) CallStatus(callSID, status string) {
	w.append(callLogFile, callLogHeader, []string{now(), callSID, "", "status", status})
}

// Turn records one dialogue turn.
func (w *Writer) Turn(callSID, speaker, text string) {
	w.append(conversationLogFile, conversationLogHeader, []string{now(), callSID, speaker, text})
}

// ExportSession writes the collected caller record at call end. A call with
// details but no confirmed booking is flagged for follow-up.
func (w *Writer) ExportSession(sess *session.Session) {
	slots := sess.Slots()

	needsFollowup := "no"
	if slots["booking_status"] != "confirmed" && (slots["name"] != "" || slots["phone"] != "" || slots["service_type"] != "") {
		needsFollowup = "yes"
	}

	w.append(customerDataFile, customerDataHeader, []string{
		now(), sess.ID,
		slots["name"], slots["phone"], slots["service_type"], slots["urgency"],
		slots["property_type"], slots["location"], slots["preferred_date"],
		slots["preferred_time"], slots["booking_status"], needsFollowup,
	})
}

func (w *Writer) append(file string, header, row []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, file)
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.log.Error("Opening %s: %v", file, err)
		return
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if fresh {
		if err := cw.Write(header); err != nil {
			w.log.Error("Writing header to %s: %v", file, err)
			return
		}
	}
	if err := cw.Write(row); err != nil {
		w.log.Error("Writing row to %s: %v", file, err)
		return
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		w.log.Error("Flushing %s: %v", file, err)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
