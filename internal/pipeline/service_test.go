package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/extract"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/rules"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/dvloznov/ownspend/internal/store/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kotakSender = "VM-KOTAKB"
	kotakText   = "Sent Rs.15.00 from Kotak Bank AC X1415 to amitabh10b26.hts21@okicici via UPI Ref no 434750881179"

	hdfcSender = "AD-HDFCBK"
	zomatoText = "Rs.250.00 debited from HDFC Bank A/c XX1234 on 01-12-25. Info: UPI/zomato@hdfcbank. Avl bal: Rs.5000.00"

	otpText = "Your OTP for login is 845512. Do not share it with anyone"
)

var baseTime = time.Date(2025, 12, 1, 10, 30, 12, 0, time.UTC)

func fixedClock() time.Time { return baseTime.Add(time.Hour) }

func newService(st store.Store, opts ...pipeline.Option) *pipeline.Service {
	opts = append([]pipeline.Option{pipeline.WithClock(fixedClock)}, opts...)
	return pipeline.NewService(st, zerolog.New(io.Discard), opts...)
}

func kotakRequest(ts time.Time) pipeline.IngestRequest {
	return pipeline.IngestRequest{
		OwnerID:    "owner-1",
		DeviceID:   "device-1",
		SourceType: domain.SourceTypeSMS,
		Sender:     kotakSender,
		RawText:    kotakText,
		Timestamp:  ts,
	}
}

func countTransactions(t *testing.T, st store.Store) int {
	t.Helper()
	txs, err := st.ListTransactions(context.Background(), store.TransactionFilter{})
	require.NoError(t, err)
	return len(txs)
}

// mockMirror records synced transactions.
type mockMirror struct {
	mu         sync.Mutex
	synced     []string
	categories []string
	err        error
}

func (m *mockMirror) Name() string { return "mock" }

func (m *mockMirror) SyncTransaction(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, tx.TransactionID)
	m.categories = append(m.categories, tx.CategoryID)
	return m.err
}

// mockRuleEngine implements pipeline.RuleEngine for testing.
type mockRuleEngine struct {
	ApplyFunc      func(ctx context.Context, tx *domain.Transaction) (bool, error)
	ApplyRulesFunc func(ctx context.Context, tx *domain.Transaction, rules []*domain.Rule) (bool, error)
}

func (m *mockRuleEngine) Apply(ctx context.Context, tx *domain.Transaction) (bool, error) {
	return m.ApplyFunc(ctx, tx)
}

func (m *mockRuleEngine) ApplyRules(ctx context.Context, tx *domain.Transaction, r []*domain.Rule) (bool, error) {
	return m.ApplyRulesFunc(ctx, tx, r)
}

// faultyStore wraps the in-memory store and lets tests intercept writes.
type faultyStore struct {
	*inmemory.Store
	CreateTransactionFunc func(ctx context.Context, tx *domain.Transaction) error
	UpdateTransactionFunc func(ctx context.Context, tx *domain.Transaction) error
	UpdateEventFunc       func(ctx context.Context, e *domain.InboundEvent) error
}

func (f *faultyStore) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if f.UpdateTransactionFunc != nil {
		return f.UpdateTransactionFunc(ctx, tx)
	}
	return f.Store.UpdateTransaction(ctx, tx)
}

func (f *faultyStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if f.CreateTransactionFunc != nil {
		return f.CreateTransactionFunc(ctx, tx)
	}
	return f.Store.CreateTransaction(ctx, tx)
}

func (f *faultyStore) UpdateEvent(ctx context.Context, e *domain.InboundEvent) error {
	if f.UpdateEventFunc != nil {
		return f.UpdateEventFunc(ctx, e)
	}
	return f.Store.UpdateEvent(ctx, e)
}

func TestIngest_KotakCreatesTransaction(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	svc := newService(st)

	res, err := svc.Ingest(ctx, kotakRequest(baseTime))
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.True(t, res.Created)
	require.NotEmpty(t, res.TransactionID)

	tx, err := st.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "15.00", tx.Amount.StringFixed(2))
	assert.Equal(t, domain.DirectionDebit, tx.Direction)
	assert.Equal(t, domain.ChannelUPI, tx.Channel)
	assert.Equal(t, domain.DefaultCurrency, tx.Currency)
	assert.Equal(t, "amitabh10b26.hts21@okicici", tx.MerchantKey)
	assert.Equal(t, baseTime, tx.TransactionTime)

	acc, err := st.FindAccount(ctx, "owner-1", "Kotak", "X1415")
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, tx.AccountID)
	assert.Equal(t, "Kotak X1415", acc.DisplayName)

	event, err := st.GetEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusParsed, event.Status)
	assert.Equal(t, tx.TransactionID, event.TransactionID)
	assert.Equal(t, "device-1", event.DeviceID)
}

func TestIngest_Dedupe(t *testing.T) {
	tests := []struct {
		name       string
		secondAt   time.Time
		wantLinked bool
	}{
		{"same event twice", baseTime, true},
		{"within the same minute", baseTime.Add(40 * time.Second), true},
		{"next minute", baseTime.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := inmemory.NewStore()
			mirror := &mockMirror{}
			svc := newService(st, pipeline.WithMirrors(mirror))

			first, err := svc.Ingest(ctx, kotakRequest(baseTime))
			require.NoError(t, err)
			second, err := svc.Ingest(ctx, kotakRequest(tt.secondAt))
			require.NoError(t, err)

			assert.NotEqual(t, first.EventID, second.EventID)
			if tt.wantLinked {
				assert.Equal(t, first.TransactionID, second.TransactionID)
				assert.False(t, second.Created)
				assert.Equal(t, 1, countTransactions(t, st))
				assert.Len(t, mirror.synced, 1, "linking does not re-mirror")
			} else {
				assert.NotEqual(t, first.TransactionID, second.TransactionID)
				assert.Equal(t, 2, countTransactions(t, st))
			}
		})
	}
}

func TestIngest_ConcurrentDuplicatesCreateOneTransaction(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	svc := newService(st)

	const n = 12
	results := make([]*pipeline.IngestResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(ctx, kotakRequest(baseTime))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].TransactionID, results[i].TransactionID)
	}
	assert.Equal(t, 1, countTransactions(t, st))

	accounts, err := st.ListAccounts(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestIngest_ConflictFallsBackToLink(t *testing.T) {
	ctx := context.Background()
	mem := inmemory.NewStore()
	st := &faultyStore{Store: mem}

	// another writer commits the same dedupe key between our find and create
	st.CreateTransactionFunc = func(ctx context.Context, tx *domain.Transaction) error {
		winner := *tx
		winner.TransactionID = "winner"
		require.NoError(t, mem.CreateTransaction(ctx, &winner))
		return store.ErrConflict
	}

	res, err := newService(st).Ingest(ctx, kotakRequest(baseTime))
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.False(t, res.Created)
	assert.Equal(t, "winner", res.TransactionID)
}

func TestIngest_ExtractionFailure(t *testing.T) {
	tests := []struct {
		name       string
		sender     string
		text       string
		wantReason string
	}{
		{"nothing recognizable", "VK-ALERTS", otpText, "could not extract required fields: amount, direction"},
		{"amount missing", "VK-ALERTS", "Amount debited from your A/c XX4321", "could not extract required fields: amount"},
		{"direction ambiguous", "JD-ICICIB", "ICICI Bank Acct XX5678 debited for Rs 750.00 on 01-Dec-25; john@upi credited.", "could not extract required fields: direction"},
		{"empty text", "", "", "could not extract required fields: amount, direction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := inmemory.NewStore()
			svc := newService(st)

			res, err := svc.Ingest(ctx, pipeline.IngestRequest{
				OwnerID:   "owner-1",
				Sender:    tt.sender,
				RawText:   tt.text,
				Timestamp: baseTime,
			})
			require.NoError(t, err)
			assert.False(t, res.Parsed)
			assert.Empty(t, res.TransactionID)
			assert.Equal(t, tt.wantReason, res.Error)

			event, err := st.GetEvent(ctx, res.EventID)
			require.NoError(t, err)
			assert.Equal(t, domain.EventStatusFailed, event.Status)
			assert.Equal(t, tt.wantReason, event.ErrorMessage)
			assert.Equal(t, domain.SourceTypeSMS, event.SourceType)
			assert.Equal(t, 0, countTransactions(t, st))
		})
	}
}

func TestIngest_InvalidRequest(t *testing.T) {
	svc := newService(inmemory.NewStore())

	_, err := svc.Ingest(context.Background(), pipeline.IngestRequest{RawText: kotakText})
	assert.ErrorIs(t, err, pipeline.ErrInvalidRequest)

	_, err = svc.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: "o", SourceType: "EMAIL"})
	assert.ErrorIs(t, err, pipeline.ErrInvalidRequest)
}

func TestIngest_DefaultTimestamp(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()

	req := kotakRequest(time.Time{})
	res, err := newService(st).Ingest(ctx, req)
	require.NoError(t, err)

	event, err := st.GetEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, fixedClock(), event.ReceivedAt)
}

func TestIngest_RulesRunOnCreate(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	_, err := rules.SeedDefaults(ctx, st, "owner-1", baseTime)
	require.NoError(t, err)

	res, err := newService(st).Ingest(ctx, pipeline.IngestRequest{
		OwnerID:   "owner-1",
		Sender:    hdfcSender,
		RawText:   zomatoText,
		Timestamp: baseTime,
	})
	require.NoError(t, err)
	require.True(t, res.Parsed)

	tx, err := st.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	food, err := st.FindCategoryByName(ctx, "Food & Dining")
	require.NoError(t, err)
	assert.Equal(t, food.CategoryID, tx.CategoryID)
}

func TestIngest_MirrorsSeeOnlyStoredRuleResults(t *testing.T) {
	zomato := pipeline.IngestRequest{
		OwnerID:   "owner-1",
		Sender:    hdfcSender,
		RawText:   zomatoText,
		Timestamp: baseTime,
	}

	tests := []struct {
		name         string
		updateErr    error
		wantCategory bool
	}{
		{name: "update succeeds", wantCategory: true},
		{name: "update fails", updateErr: errors.New("connection reset"), wantCategory: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := inmemory.NewStore()
			_, err := rules.SeedDefaults(ctx, mem, "owner-1", baseTime)
			require.NoError(t, err)
			food, err := mem.FindCategoryByName(ctx, "Food & Dining")
			require.NoError(t, err)

			st := &faultyStore{Store: mem}
			if tt.updateErr != nil {
				st.UpdateTransactionFunc = func(ctx context.Context, tx *domain.Transaction) error {
					return tt.updateErr
				}
			}
			mirror := &mockMirror{}

			res, err := newService(st, pipeline.WithMirrors(mirror)).Ingest(ctx, zomato)
			require.NoError(t, err)
			require.True(t, res.Parsed)

			stored, err := mem.GetTransaction(ctx, res.TransactionID)
			require.NoError(t, err)
			require.Len(t, mirror.categories, 1)
			assert.Equal(t, stored.CategoryID, mirror.categories[0])

			if tt.wantCategory {
				assert.Equal(t, food.CategoryID, stored.CategoryID)
			} else {
				assert.Empty(t, stored.CategoryID)
			}
		})
	}
}

func TestIngest_RuleLogsUseServiceLogger(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	_, err := rules.SeedDefaults(ctx, st, "owner-1", baseTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	svc := pipeline.NewService(st, zerolog.New(&buf).Level(zerolog.DebugLevel), pipeline.WithClock(fixedClock))

	res, err := svc.Ingest(ctx, pipeline.IngestRequest{
		OwnerID:   "owner-1",
		Sender:    hdfcSender,
		RawText:   zomatoText,
		Timestamp: baseTime,
	})
	require.NoError(t, err)
	require.True(t, res.Parsed)

	assert.Contains(t, buf.String(), `"message":"Rule applied"`)
	assert.Contains(t, buf.String(), `"event_id":"`+res.EventID+`"`)
}

func TestIngest_PostCommitFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	mirror := &mockMirror{err: errors.New("notion unavailable")}
	engine := &mockRuleEngine{
		ApplyFunc: func(ctx context.Context, tx *domain.Transaction) (bool, error) {
			return false, errors.New("rules table locked")
		},
	}

	res, err := newService(st, pipeline.WithMirrors(mirror), pipeline.WithRuleEngine(engine)).
		Ingest(ctx, kotakRequest(baseTime))
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.Equal(t, []string{res.TransactionID}, mirror.synced)

	event, err := st.GetEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusParsed, event.Status)
}

func TestIngest_StoreFaultPropagates(t *testing.T) {
	ctx := context.Background()
	mem := inmemory.NewStore()
	boom := errors.New("disk full")
	st := &faultyStore{
		Store: mem,
		CreateTransactionFunc: func(ctx context.Context, tx *domain.Transaction) error {
			return boom
		},
	}

	res, err := newService(st).Ingest(ctx, kotakRequest(baseTime))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)

	events, listErr := mem.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, listErr)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventStatusFailed, events[0].Status)
	assert.Contains(t, events[0].ErrorMessage, "disk full")
	assert.Equal(t, 0, countTransactions(t, mem))
}

func TestIngest_FailureReasonIsTruncated(t *testing.T) {
	ctx := context.Background()
	mem := inmemory.NewStore()
	st := &faultyStore{
		Store: mem,
		CreateTransactionFunc: func(ctx context.Context, tx *domain.Transaction) error {
			return errors.New(strings.Repeat("x", 5000))
		},
	}

	_, err := newService(st).Ingest(ctx, kotakRequest(baseTime))
	require.Error(t, err)

	events, listErr := mem.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, listErr)
	require.Len(t, events, 1)
	assert.Len(t, events[0].ErrorMessage, 2000)
}

// nothingExtractor never finds anything.
type nothingExtractor struct{}

func (nothingExtractor) Extract(sender, pkg, text string) (extract.Fields, extract.SourceKind, bool) {
	return extract.Fields{}, extract.SourceGeneric, false
}

func TestReparse(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()

	// events ingested while extraction was broken
	broken := newService(st, pipeline.WithExtractor(nothingExtractor{}))
	for _, ts := range []time.Time{baseTime, baseTime.Add(10 * time.Second)} {
		res, err := broken.Ingest(ctx, kotakRequest(ts))
		require.NoError(t, err)
		require.False(t, res.Parsed)
	}
	_, err := broken.Ingest(ctx, pipeline.IngestRequest{OwnerID: "owner-1", RawText: otpText, Timestamp: baseTime})
	require.NoError(t, err)

	svc := newService(st)
	res, err := svc.Reparse(ctx, store.EventFilter{OwnerID: "owner-1", Status: domain.EventStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, &pipeline.ReparseResult{Total: 3, Succeeded: 2, Failed: 1}, res)
	assert.Equal(t, 1, countTransactions(t, st), "both kotak events share one dedupe key")

	// reparsing everything again creates nothing new
	res, err = svc.Reparse(ctx, store.EventFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, countTransactions(t, st))

	failed, err := st.ListEvents(ctx, store.EventFilter{Status: domain.EventStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, otpText, failed[0].RawText)
}

func TestReapplyRules(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	mirror := &mockMirror{}
	svc := newService(st, pipeline.WithMirrors(mirror))

	res, err := svc.Ingest(ctx, pipeline.IngestRequest{
		OwnerID: "owner-1", Sender: hdfcSender, RawText: zomatoText, Timestamp: baseTime,
	})
	require.NoError(t, err)
	other, err := svc.Ingest(ctx, pipeline.IngestRequest{
		OwnerID: "owner-2", Sender: hdfcSender, RawText: zomatoText, Timestamp: baseTime,
	})
	require.NoError(t, err)

	// rules are added after ingestion
	_, err = rules.SeedDefaults(ctx, st, "owner-1", baseTime)
	require.NoError(t, err)
	mirror.synced = nil

	out, err := svc.ReapplyRules(ctx, "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, &pipeline.ReapplyResult{Processed: 1, Changed: 1}, out)
	assert.Equal(t, []string{res.TransactionID}, mirror.synced)

	out, err = svc.ReapplyRules(ctx, "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, &pipeline.ReapplyResult{Processed: 1, Changed: 0}, out)

	out, err = svc.ReapplyRules(ctx, "owner-1", []string{res.TransactionID, other.TransactionID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Processed, "other owner's and unknown ids are skipped")
}

func TestEditTransaction_OverrideSurvivesReapply(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	_, err := rules.SeedDefaults(ctx, st, "owner-1", baseTime)
	require.NoError(t, err)
	svc := newService(st)

	res, err := svc.Ingest(ctx, pipeline.IngestRequest{
		OwnerID: "owner-1", Sender: hdfcSender, RawText: zomatoText, Timestamp: baseTime,
	})
	require.NoError(t, err)

	shopping, err := st.FindCategoryByName(ctx, "Shopping")
	require.NoError(t, err)

	edited, err := svc.EditTransaction(ctx, "owner-1", res.TransactionID, domain.TransactionEdit{CategoryID: &shopping.CategoryID})
	require.NoError(t, err)
	assert.Equal(t, shopping.CategoryID, edited.CategoryID)
	assert.True(t, edited.OverrideFlags.IsOverridden(domain.OverrideCategory))

	out, err := svc.ReapplyRules(ctx, "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Changed)

	tx, err := st.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, shopping.CategoryID, tx.CategoryID)

	// releasing the override hands the field back to the rules
	_, err = svc.EditTransaction(ctx, "owner-1", res.TransactionID, domain.TransactionEdit{ClearOverrides: domain.OverrideCategory})
	require.NoError(t, err)
	out, err = svc.ReapplyRules(ctx, "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Changed)
}

func TestEditTransaction_OtherOwner(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	svc := newService(st)

	res, err := svc.Ingest(ctx, kotakRequest(baseTime))
	require.NoError(t, err)

	desc := "lunch"
	_, err = svc.EditTransaction(ctx, "owner-2", res.TransactionID, domain.TransactionEdit{Description: &desc})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
