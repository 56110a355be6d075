package db

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// MemoryStore is an in-process implementation of every repository with the
// same transactional semantics as the Firestore repositories. A single mutex
// plays the role of the Firestore transaction.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	keys         map[string]*models.APIKey
	transactions map[string]*models.Transaction
	paymentLogs  []*models.PaymentLog
	seq          int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*models.Account),
		keys:         make(map[string]*models.APIKey),
		transactions: make(map[string]*models.Transaction),
	}
}

// Accounts returns the AccountRepository view of the store.
func (s *MemoryStore) Accounts() AccountRepository { return memoryAccounts{s} }

// APIKeys returns the APIKeyRepository view of the store.
func (s *MemoryStore) APIKeys() APIKeyRepository { return memoryAPIKeys{s} }

// Transactions returns the TransactionRepository view of the store.
func (s *MemoryStore) Transactions() TransactionRepository { return memoryTransactions{s} }

// PaymentLogs returns the PaymentLogRepository view of the store.
func (s *MemoryStore) PaymentLogs() PaymentLogRepository { return memoryPaymentLogs{s} }

// PaymentLogEntries returns a copy of every stored payment log.
func (s *MemoryStore) PaymentLogEntries() []models.PaymentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PaymentLog, 0, len(s.paymentLogs))
	for _, entry := range s.paymentLogs {
		out = append(out, *entry)
	}
	return out
}

func (s *MemoryStore) nextID(prefix string) string {
	s.seq++
	return prefix + strconv.Itoa(s.seq)
}

func (s *MemoryStore) keyByString(key string) *models.APIKey {
	for _, k := range s.keys {
		if k.Key == key {
			return k
		}
	}
	return nil
}

func (s *MemoryStore) mirror(k *models.APIKey, now time.Time) {
	if account, ok := s.accounts[k.AccountID]; ok {
		account.MirrorKey(k)
		account.UpdatedAt = now
	}
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

func copyKey(k *models.APIKey) *models.APIKey {
	c := *k
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func copyTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	return &c
}

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) GetByID(_ context.Context, accountID string) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
	}
	return copyAccount(a), nil
}

func (m memoryAccounts) Create(_ context.Context, account *models.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.accounts[account.ID]; ok {
		return fmt.Errorf("account with ID '%s': %w", account.ID, ErrAlreadyExists)
	}
	m.s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (m memoryAccounts) List(_ context.Context) ([]*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*models.Account, 0, len(m.s.accounts))
	for _, a := range m.s.accounts {
		out = append(out, copyAccount(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m memoryAccounts) Count(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return int64(len(m.s.accounts)), nil
}

func (m memoryAccounts) SetRole(_ context.Context, accountID string, role models.Role, now time.Time) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
	}
	a.Role = role
	a.UpdatedAt = now
	return copyAccount(a), nil
}

func (m memoryAccounts) ApplyPlan(_ context.Context, accountID string, plan models.Tier, resetUsage bool, now time.Time) (*models.Account, *models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[accountID]
	if !ok {
		return nil, nil, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
	}
	a.Plan = plan
	a.UpdatedAt = now
	active := m.s.activeKey(accountID)
	if active == nil {
		return copyAccount(a), nil, nil
	}
	active.Plan = plan
	active.Limit = plan.Limit()
	active.UpdatedAt = now
	if resetUsage {
		active.Usage = 0
	}
	a.MirrorKey(active)
	return copyAccount(a), copyKey(active), nil
}

func (m memoryAccounts) Delete(_ context.Context, accountID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.accounts[accountID]; !ok {
		return 0, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
	}
	deleted := 0
	for id, k := range m.s.keys {
		if k.AccountID == accountID {
			delete(m.s.keys, id)
			deleted++
		}
	}
	delete(m.s.accounts, accountID)
	return deleted, nil
}

// activeKey returns the oldest active key of the account. Callers hold the lock.
func (s *MemoryStore) activeKey(accountID string) *models.APIKey {
	var found *models.APIKey
	for _, k := range s.keys {
		if k.AccountID != accountID || !k.IsActive {
			continue
		}
		if found == nil || k.CreatedAt.Before(found.CreatedAt) {
			found = k
		}
	}
	return found
}

type memoryAPIKeys struct{ s *MemoryStore }

func (m memoryAPIKeys) Create(_ context.Context, key *models.APIKey) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.accounts[key.AccountID]; !ok {
		return fmt.Errorf("account with ID '%s': %w", key.AccountID, ErrNotFound)
	}
	if m.s.keyByString(key.Key) != nil {
		return fmt.Errorf("api key string: %w", ErrAlreadyExists)
	}
	if key.IsActive {
		for _, k := range m.s.keys {
			if k.AccountID == key.AccountID && k.IsActive {
				k.IsActive = false
				k.UpdatedAt = key.CreatedAt
			}
		}
	}
	key.ID = m.s.nextID("key-")
	stored := copyKey(key)
	m.s.keys[stored.ID] = stored
	if stored.IsActive {
		m.s.mirror(stored, key.CreatedAt)
	}
	return nil
}

func (m memoryAPIKeys) GetByID(_ context.Context, keyID string) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k, ok := m.s.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) GetByKey(_ context.Context, key string) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := m.s.keyByString(key)
	if k == nil {
		return nil, fmt.Errorf("api key string: %w", ErrNotFound)
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) GetActiveByAccount(_ context.Context, accountID string) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := m.s.activeKey(accountID)
	if k == nil {
		return nil, fmt.Errorf("active api key for account '%s': %w", accountID, ErrNotFound)
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) ListByAccount(_ context.Context, accountID string) ([]*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*models.APIKey, 0)
	for _, k := range m.s.keys {
		if k.AccountID == accountID {
			out = append(out, copyKey(k))
		}
	}
	sortKeysNewestFirst(out)
	return out, nil
}

func (m memoryAPIKeys) Consume(_ context.Context, key string, now time.Time) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := m.s.keyByString(key)
	if k == nil {
		return nil, fmt.Errorf("api key string: %w", ErrNotFound)
	}
	if !k.IsActive {
		return nil, ErrKeyInactive
	}
	if k.Usage >= k.Limit {
		return nil, ErrQuotaExhausted
	}
	k.Usage++
	used := now
	k.LastUsedAt = &used
	k.UpdatedAt = now
	if a, ok := m.s.accounts[k.AccountID]; ok && a.APIKey == k.Key {
		a.MirrorKey(k)
		a.UpdatedAt = now
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) Rotate(_ context.Context, keyID, newKey string, opts RotateOptions, now time.Time) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k, ok := m.s.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
	}
	if other := m.s.keyByString(newKey); other != nil && other.ID != keyID {
		return nil, fmt.Errorf("api key string: %w", ErrAlreadyExists)
	}
	oldKey := k.Key
	k.Key = newKey
	k.Custom = opts.Custom
	k.UpdatedAt = now
	if opts.ResetUsage {
		k.Usage = 0
		k.LastUsedAt = nil
	}
	if a, ok := m.s.accounts[k.AccountID]; ok && (k.IsActive || a.APIKey == oldKey) {
		a.MirrorKey(k)
		a.UpdatedAt = now
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) SetActive(_ context.Context, keyID string, active bool, now time.Time) (*models.APIKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k, ok := m.s.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
	}
	if active {
		for _, other := range m.s.keys {
			if other.ID != keyID && other.AccountID == k.AccountID && other.IsActive {
				other.IsActive = false
				other.UpdatedAt = now
			}
		}
	}
	k.IsActive = active
	k.UpdatedAt = now
	if active {
		m.s.mirror(k, now)
	} else if a, ok := m.s.accounts[k.AccountID]; ok && a.APIKey == k.Key {
		a.MirrorKey(nil)
		a.UpdatedAt = now
	}
	return copyKey(k), nil
}

func (m memoryAPIKeys) ResetAllUsage(_ context.Context, now time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	reset := 0
	for _, k := range m.s.keys {
		if k.Usage > 0 {
			k.Usage = 0
			k.UpdatedAt = now
			reset++
		}
	}
	for _, a := range m.s.accounts {
		if a.APIUsage > 0 {
			a.APIUsage = 0
			a.UpdatedAt = now
		}
	}
	return reset, nil
}

func (m memoryAPIKeys) Count(_ context.Context) (int64, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var active int64
	for _, k := range m.s.keys {
		if k.IsActive {
			active++
		}
	}
	return int64(len(m.s.keys)), active, nil
}

type memoryTransactions struct{ s *MemoryStore }

func (m memoryTransactions) Create(_ context.Context, txn *models.Transaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.transactions[txn.MerchantRef]; ok {
		return fmt.Errorf("transaction '%s': %w", txn.MerchantRef, ErrAlreadyExists)
	}
	m.s.transactions[txn.MerchantRef] = copyTransaction(txn)
	return nil
}

func (m memoryTransactions) GetByMerchantRef(_ context.Context, merchantRef string) (*models.Transaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.transactions[merchantRef]
	if !ok {
		return nil, fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
	}
	return copyTransaction(t), nil
}

func (m memoryTransactions) ListByAccount(_ context.Context, accountID string) ([]*models.Transaction, error) {
	return m.list(func(t *models.Transaction) bool { return t.AccountID == accountID }), nil
}

func (m memoryTransactions) List(_ context.Context) ([]*models.Transaction, error) {
	return m.list(func(*models.Transaction) bool { return true }), nil
}

func (m memoryTransactions) list(match func(*models.Transaction) bool) []*models.Transaction {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*models.Transaction, 0)
	for _, t := range m.s.transactions {
		if match(t) {
			out = append(out, copyTransaction(t))
		}
	}
	sortTransactionsNewestFirst(out)
	return out
}

func (m memoryTransactions) CountByStatus(_ context.Context, status models.TransactionStatus) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, t := range m.s.transactions {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m memoryTransactions) Transition(_ context.Context, merchantRef string, patch TransitionPatch) (*models.Transaction, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.transactions[merchantRef]
	if !ok {
		return nil, false, fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
	}
	if t.Status == patch.Status {
		return copyTransaction(t), false, nil
	}
	if t.Status.Terminal() {
		return copyTransaction(t), false, fmt.Errorf("transaction '%s' is %s: %w", merchantRef, t.Status, ErrInvalidTransition)
	}
	applyTransition(t, patch)
	return copyTransaction(t), true, nil
}

func (m memoryTransactions) MarkPlanApplied(_ context.Context, merchantRef string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.transactions[merchantRef]
	if !ok {
		return fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
	}
	t.PlanApplied = true
	t.UpdatedAt = at
	return nil
}

type memoryPaymentLogs struct{ s *MemoryStore }

func (m memoryPaymentLogs) Create(_ context.Context, entry *models.PaymentLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	entry.ID = m.s.nextID("log-")
	c := *entry
	m.s.paymentLogs = append(m.s.paymentLogs, &c)
	return nil
}
