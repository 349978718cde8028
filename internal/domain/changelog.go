package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "create"
	ChangeActionUpdate ChangeAction = "update"
	ChangeActionDelete ChangeAction = "delete"
)

// ChangeLogEntry is one row of the append-only ledger. Payload holds
// the full entity snapshot as stored at write time (nil for deletes);
// it is replayed verbatim to pulling clients, never re-read from the
// entity tables.
type ChangeLogEntry struct {
	ID              int64
	EntityType      EntityType
	ServerID        int64
	Action          ChangeAction
	Revision        int64
	Payload         []byte
	ChangedByUserID int64
	CreatedAt       time.Time
}

func (e *ChangeLogEntry) Cursor() string { return EncodeCursor(e.ID) }

const cursorPrefix = "chg_"

// EncodeCursor renders a ledger id as an opaque, lexically sortable
// cursor token: "chg_" followed by the id zero-padded to 12 digits.
func EncodeCursor(id int64) string {
	return fmt.Sprintf("%s%012d", cursorPrefix, id)
}

// DecodeCursor is forgiving: it accepts tokens produced by
// EncodeCursor as well as bare integers, and maps anything else
// (including negatives) to 0, the beginning of the stream. It never
// fails; a client with a corrupt cursor re-downloads instead of
// getting stuck.
func DecodeCursor(cursor string) int64 {
	s := strings.TrimPrefix(cursor, cursorPrefix)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
