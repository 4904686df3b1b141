package ledger

import (
	"fmt"
	"strconv"

	"FightPool/internal/event"
	fpmath "FightPool/internal/math"

	"github.com/google/uuid"
)

// batchNamespace seeds deterministic batch ids so a replayed command
// produces the same journals it did the first time.
var batchNamespace = uuid.MustParse("5b0c7d2e-3f1a-4e9b-8c6d-2a7f0e1b9d43")

// JournalGenerator creates balanced journal batches for escrow transfers
type JournalGenerator struct {
	balanceTracker *BalanceTracker // for pre-checks
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		balanceTracker: tracker,
	}
}

func newBatch(eventRef string, sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.NewSHA1(batchNamespace, []byte(eventRef+":"+strconv.FormatInt(sequence, 10))),
		EventRef:  eventRef,
		Sequence:  sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}
}

func (b *Batch) add(debit, credit AccountKey, amount int64, jt JournalType) {
	idx := strconv.Itoa(len(b.Journals))
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.NewSHA1(b.BatchID, []byte(idx)),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateStake moves a bettor's stake into the match vault.
// Moves funds: wallet:<bettor> → vault:<match>
func (jg *JournalGenerator) GenerateStake(
	eventRef string,
	sequence, timestamp int64,
	matchID event.MatchID,
	bettor event.Pubkey,
	amount uint64,
) (*Batch, error) {
	amt, err := fpmath.ToInt64(amount)
	if err != nil {
		return nil, fmt.Errorf("stake amount %d: %w", amount, err)
	}
	if amt == 0 {
		return nil, fmt.Errorf("stake amount must be positive")
	}

	batch := newBatch(eventRef, sequence, timestamp)
	batch.add(VaultAccount(matchID), WalletAccount(bettor), amt, JournalTypeStake)
	return batch, nil
}

// GenerateRelease moves funds out of a match vault.
// Moves funds: vault:<match> → wallet:<dest>
// Returns a nil batch for a zero amount: floor division can leave a
// settlement with nothing to transfer.
// Pre-check: vault must cover the amount.
func (jg *JournalGenerator) GenerateRelease(
	eventRef string,
	sequence, timestamp int64,
	matchID event.MatchID,
	dest event.Pubkey,
	amount uint64,
	jt JournalType,
) (*Batch, error) {
	amt, err := fpmath.ToInt64(amount)
	if err != nil {
		return nil, fmt.Errorf("release amount %d: %w", amount, err)
	}
	if amt == 0 {
		return nil, nil
	}

	if err := jg.balanceTracker.ValidateSufficientVault(matchID, amt); err != nil {
		return nil, fmt.Errorf("%s pre-check failed: %w", jt, err)
	}

	batch := newBatch(eventRef, sequence, timestamp)
	batch.add(WalletAccount(dest), VaultAccount(matchID), amt, jt)
	return batch, nil
}
