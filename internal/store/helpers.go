package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// seqLess compares two string-encoded sequence numbers numerically. Malformed
// values count as 0, matching the zero state.
func seqLess(a, b string) bool {
	ai, _ := strconv.ParseInt(a, 10, 64)
	bi, _ := strconv.ParseInt(b, 10, 64)
	return ai < bi
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// scanDrillStatus scans a DrillStatus from sql.Rows.
func scanDrillStatus(rows *sql.Rows) (DrillStatus, error) {
	var st DrillStatus
	var instanceID uuid.NullUUID
	var started, completed sql.NullTime
	err := rows.Scan(&st.ID, &st.UserID, &instanceID, &st.DrillSlug, &st.PlaceInSequence, &started, &completed)
	if err != nil {
		return st, fmt.Errorf("scan drill status failed: %w", err)
	}
	if instanceID.Valid {
		id := instanceID.UUID
		st.DrillInstanceID = &id
	}
	st.StartedTime = timePtr(started)
	st.CompletedTime = timePtr(completed)
	return st, nil
}

// scanDrillInstance scans a DrillInstance from sql.Rows.
func scanDrillInstance(rows *sql.Rows) (DrillInstance, error) {
	var in DrillInstance
	var promptSlug sql.NullString
	var promptStart, promptLastResponse, completion sql.NullTime
	err := rows.Scan(
		&in.DrillInstanceID, &in.UserID, &in.Seq, &in.PhoneNumber, &in.DrillSlug,
		&promptSlug, &promptStart, &promptLastResponse, &completion, &in.IsValid,
	)
	if err != nil {
		return in, fmt.Errorf("scan drill instance failed: %w", err)
	}
	in.CurrentPromptSlug = promptSlug.String
	in.CurrentPromptStartTime = timePtr(promptStart)
	in.CurrentPromptLastResponseTime = timePtr(promptLastResponse)
	in.CompletionTime = timePtr(completion)
	return in, nil
}

// scanQueuedCommand scans a QueuedCommand from sql.Rows.
func scanQueuedCommand(rows *sql.Rows) (QueuedCommand, error) {
	var c QueuedCommand
	var lastError sql.NullString
	err := rows.Scan(&c.ID, &c.PhoneNumber, &c.Seq, &c.CommandType, &c.PayloadJSON, &c.Status, &c.Attempts, &lastError, &c.CreatedAt)
	if err != nil {
		return c, fmt.Errorf("scan queued command failed: %w", err)
	}
	c.LastError = lastError.String
	return c, nil
}

// progressFromStatuses computes the catalog-ordered progress summary. The
// statuses must already be sorted by place_in_sequence.
func progressFromStatuses(phoneNumber string, statuses []DrillStatus) *DrillProgress {
	p := &DrillProgress{PhoneNumber: phoneNumber}
	for _, st := range statuses {
		if p.FirstIncompleteDrillSlug == "" && st.CompletedTime == nil {
			p.FirstIncompleteDrillSlug = st.DrillSlug
		}
		if p.FirstUnstartedDrillSlug == "" && st.StartedTime == nil {
			p.FirstUnstartedDrillSlug = st.DrillSlug
		}
	}
	return p
}
