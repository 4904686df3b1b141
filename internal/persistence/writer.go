package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes events and journals to Postgres using multi-row
// INSERTs. Writes are idempotent on the primary keys so a retried batch
// never duplicates rows.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MatchID        *string
	Payload        []byte // JSON-encoded command
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   string
	Timestamp     int64
}

// CoreOutput is the persisted form of one core.CoreOutput.
type CoreOutput struct {
	EventRow    EventRow
	JournalRows []JournalRow
}

// RowsFromOutput converts a committed core output into its log rows.
func RowsFromOutput(out core.CoreOutput) CoreOutput {
	env := out.Envelope

	var matchID *string
	if env.MatchID != nil {
		s := env.MatchID.String()
		matchID = &s
	}

	row := CoreOutput{
		EventRow: EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			MatchID:        matchID,
			Payload:        env.Payload,
			StateHash:      append([]byte(nil), env.StateHash[:]...),
			PrevHash:       append([]byte(nil), env.PrevHash[:]...),
			Timestamp:      env.Timestamp,
		},
	}

	if out.Batch != nil {
		row.JournalRows = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			row.JournalRows = append(row.JournalRows, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   j.JournalType.String(),
				Timestamp:     j.Timestamp,
			})
		}
	}
	return row
}

// Envelope rebuilds the logged envelope for replay.
func (r EventRow) Envelope() (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(r.EventType)
	if !ok {
		return nil, fmt.Errorf("seq %d: unknown event type %q", r.Sequence, r.EventType)
	}
	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      et,
		Timestamp:      r.Timestamp,
		Payload:        r.Payload,
	}
	if r.MatchID != nil {
		id, err := event.ParseMatchID(*r.MatchID)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", r.Sequence, err)
		}
		env.MatchID = &id
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("seq %d: malformed hash columns", r.Sequence)
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 8
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.MatchID,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, match_id, payload, state_hash, prev_hash, timestamp)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	const cols = 9
	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*cols)
	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (journal_id) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTx writes events and their journals in one transaction.
func (w *EventLogWriter) WriteTx(ctx context.Context, events []EventRow, journals []JournalRow) (stage string, err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return "tx_begin", err
	}
	defer tx.Rollback()

	if err := w.WriteEventBatch(ctx, tx, events); err != nil {
		return "write_events", err
	}
	if err := w.WriteJournalBatch(ctx, tx, journals); err != nil {
		return "write_journals", err
	}
	if err := tx.Commit(); err != nil {
		return "tx_commit", err
	}
	return "", nil
}

// placeholders renders "($n+1, ..., $n+cols)".
func placeholders(base, cols int) string {
	var b strings.Builder
	b.WriteByte('(')
	for c := 1; c <= cols; c++ {
		if c > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+c)
	}
	b.WriteByte(')')
	return b.String()
}
