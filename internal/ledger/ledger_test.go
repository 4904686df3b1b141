package ledger_test

import (
	"errors"
	"strings"
	"testing"

	"FightPool/internal/event"
	"FightPool/internal/ledger"

	"github.com/google/uuid"
)

var (
	testMatch  = event.MatchID{0x11, 0x22}
	testBettor = event.Pubkey{0xbe, 0x77}
)

func mustStake(t *testing.T, bt *ledger.BalanceTracker, amount uint64) {
	t.Helper()
	gen := ledger.NewJournalGenerator(bt)
	batch, err := gen.GenerateStake("stake-"+uuid.NewString(), 1, 1_000, testMatch, testBettor, amount)
	if err != nil {
		t.Fatalf("GenerateStake: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_VaultPath(t *testing.T) {
	path := ledger.VaultAccount(event.MatchID{0xab}).AccountPath()
	want := "vault:ab" + strings.Repeat("00", 31)
	if path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestAccountKey_WalletPath(t *testing.T) {
	path := ledger.WalletAccount(event.Pubkey{0x01}).AccountPath()
	if !strings.HasPrefix(path, "wallet:01") || len(path) != len("wallet:")+64 {
		t.Errorf("unexpected wallet path %q", path)
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	for _, key := range []ledger.AccountKey{
		ledger.VaultAccount(testMatch),
		ledger.WalletAccount(testBettor),
	} {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("got %v, want %v", parsed, key)
		}
	}
}

func TestParseAccountPath_Rejects(t *testing.T) {
	for _, path := range []string{
		"",
		"vault",
		"user:" + strings.Repeat("00", 32),
		"vault:abc",
		"wallet:" + strings.Repeat("zz", 32),
	} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("ParseAccountPath(%q) should fail", path)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if balance := bt.VaultBalance(testMatch); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_StakeMovesWalletToVault(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	mustStake(t, bt, 1_000_000)

	if got := bt.VaultBalance(testMatch); got != 1_000_000 {
		t.Errorf("vault: got %d, want 1_000_000", got)
	}
	if got := bt.WalletBalance(testBettor); got != -1_000_000 {
		t.Errorf("wallet: got %d, want -1_000_000", got)
	}
	if got := bt.ComputeGlobalBalance(); got != 0 {
		t.Errorf("global: got %d, want 0", got)
	}
}

func TestBalanceTracker_RejectsNegativeVaultAtomically(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	mustStake(t, bt, 100)

	batchID := uuid.New()
	other := event.Pubkey{0x99}
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.WalletAccount(testBettor),
				CreditAccount: ledger.VaultAccount(testMatch),
				Amount:        60,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.WalletAccount(other),
				CreditAccount: ledger.VaultAccount(testMatch),
				Amount:        60,
			},
		},
	}

	err := bt.ApplyBatch(batch)
	if !errors.Is(err, ledger.ErrNegativeVault) {
		t.Fatalf("got %v, want ErrNegativeVault", err)
	}
	if got := bt.VaultBalance(testMatch); got != 100 {
		t.Errorf("first leg leaked: vault %d, want 100", got)
	}
	if got := bt.WalletBalance(other); got != 0 {
		t.Errorf("wallet touched: %d", got)
	}
}

func TestBalanceTracker_WalletMayGoNegative(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	mustStake(t, bt, 5)
	if err := bt.ValidateNonNegative(ledger.WalletAccount(testBettor)); err == nil {
		t.Error("ValidateNonNegative should flag the staking wallet")
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	mustStake(t, bt, 999)

	snap := bt.Snapshot()
	for k := range snap {
		snap[k] = 0
	}
	if bt.VaultBalance(testMatch) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}

	restored := ledger.NewBalanceTracker()
	restored.Restore(bt.Snapshot())
	if restored.VaultBalance(testMatch) != 999 || restored.WalletBalance(testBettor) != -999 {
		t.Error("restore did not reproduce balances")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestGenerateRelease_PreCheck(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	mustStake(t, bt, 1_000)
	gen := ledger.NewJournalGenerator(bt)

	if _, err := gen.GenerateRelease("r1", 2, 1_000, testMatch, testBettor, 1_001, ledger.JournalTypePayout); err == nil {
		t.Error("release above vault balance should fail")
	}

	batch, err := gen.GenerateRelease("r2", 3, 1_000, testMatch, testBettor, 1_000, ledger.JournalTypePayout)
	if err != nil {
		t.Fatalf("GenerateRelease: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if bt.VaultBalance(testMatch) != 0 || bt.WalletBalance(testBettor) != 0 {
		t.Error("full release should zero both accounts")
	}
}

func TestGenerateRelease_ZeroAmountIsNoop(t *testing.T) {
	gen := ledger.NewJournalGenerator(ledger.NewBalanceTracker())
	batch, err := gen.GenerateRelease("r", 1, 0, testMatch, testBettor, 0, ledger.JournalTypeCancelledSweep)
	if err != nil || batch != nil {
		t.Errorf("got batch=%v err=%v, want nil/nil", batch, err)
	}
}

func TestGenerateStake_Overflow(t *testing.T) {
	gen := ledger.NewJournalGenerator(ledger.NewBalanceTracker())
	if _, err := gen.GenerateStake("s", 1, 0, testMatch, testBettor, 1<<63); err == nil {
		t.Error("stake beyond int64 should fail")
	}
}

func TestGenerator_DeterministicIDs(t *testing.T) {
	gen := ledger.NewJournalGenerator(ledger.NewBalanceTracker())
	a, _ := gen.GenerateStake("req-1", 7, 0, testMatch, testBettor, 10)
	b, _ := gen.GenerateStake("req-1", 7, 0, testMatch, testBettor, 10)
	if a.BatchID != b.BatchID || a.Journals[0].JournalID != b.Journals[0].JournalID {
		t.Error("same command and sequence should reproduce ids")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate(t *testing.T) {
	vault := ledger.VaultAccount(testMatch)
	wallet := ledger.WalletAccount(testBettor)

	tests := []struct {
		name    string
		debit   ledger.AccountKey
		credit  ledger.AccountKey
		amount  int64
		batchID func(uuid.UUID) uuid.UUID
		wantErr bool
	}{
		{"valid", vault, wallet, 1_000_000, nil, false},
		{"zero amount", vault, wallet, 0, nil, true},
		{"negative amount", vault, wallet, -100, nil, true},
		{"self transfer", vault, vault, 100, nil, true},
		{"mismatched batch", vault, wallet, 100, func(uuid.UUID) uuid.UUID { return uuid.New() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batchID := uuid.New()
			journalBatch := batchID
			if tt.batchID != nil {
				journalBatch = tt.batchID(batchID)
			}
			batch := &ledger.Batch{
				BatchID: batchID,
				Journals: []ledger.Journal{{
					JournalID:     uuid.New(),
					BatchID:       journalBatch,
					DebitAccount:  tt.debit,
					CreditAccount: tt.credit,
					Amount:        tt.amount,
				}},
			}
			err := batch.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}
	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}
	if err := v.ValidateVaultEmpty(testMatch); err != nil {
		t.Errorf("untouched vault should be empty: %v", err)
	}

	mustStake(t, bt, 1_000)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
	if err := v.ValidateVaultsNonNegative(); err != nil {
		t.Errorf("vaults: %v", err)
	}
	if err := v.ValidateVaultCovers(testMatch, 1_000); err != nil {
		t.Errorf("exact cover should pass: %v", err)
	}
	if err := v.ValidateVaultCovers(testMatch, 1_001); err == nil {
		t.Error("under-covered vault should fail")
	}
	if err := v.ValidateVaultEmpty(testMatch); err == nil {
		t.Error("funded vault is not empty")
	}
}
