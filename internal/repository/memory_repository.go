package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-process Repository used by tests and local demos.
// A single mutex makes every method atomic, which stands in for the
// transactions PostgresRepository uses.
type MemoryRepository struct {
	mu  sync.Mutex
	seq int64

	users         map[string]models.User
	roles         map[string]models.Role // by name
	currencies    map[string]models.CurrencyType
	wallets       map[string]models.Wallet
	balances      map[string]map[string]decimal.Decimal
	custody       map[string]models.CashCustody
	notifications map[string]models.Notification
	debts         map[string]models.Debt
	prices        map[string]models.ManagerPrice
	transactions  map[string]models.Transaction

	// order preserves insertion order for stable listings
	order map[string]int64
}

// NewMemoryRepository creates an empty repository seeded with the standard roles and currencies
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		users:         make(map[string]models.User),
		roles:         make(map[string]models.Role),
		currencies:    make(map[string]models.CurrencyType),
		wallets:       make(map[string]models.Wallet),
		balances:      make(map[string]map[string]decimal.Decimal),
		custody:       make(map[string]models.CashCustody),
		notifications: make(map[string]models.Notification),
		debts:         make(map[string]models.Debt),
		prices:        make(map[string]models.ManagerPrice),
		transactions:  make(map[string]models.Transaction),
		order:         make(map[string]int64),
	}

	for _, name := range []string{models.RoleAdmin, models.RoleManager, models.RoleTreasurer, models.RoleCashier} {
		r.roles[name] = models.Role{ID: uuid.New().String(), Name: name, Permissions: pq.StringArray{}, CreatedAt: now()}
	}
	for _, code := range []string{"USD", "EUR", "USDT"} {
		r.currencies[code] = models.CurrencyType{Code: code, Name: code, IsActive: true, CreatedAt: now()}
	}

	return r
}

func (r *MemoryRepository) track(id string) {
	r.seq++
	r.order[id] = r.seq
}

// newestFirst sorts ids by descending insertion order
func (r *MemoryRepository) newestFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] > r.order[ids[j]] })
}

func (r *MemoryRepository) oldestFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] < r.order[ids[j]] })
}

// User operations
func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return models.ErrAlreadyExists
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	r.users[user.ID] = *user
	r.track(user.ID)
	return nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context, roleName string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, u := range r.users {
		if roleName == "" || u.RoleName == roleName {
			ids = append(ids, id)
		}
	}
	r.oldestFirst(ids)

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, r.users[id])
	}
	return users, nil
}

func (r *MemoryRepository) RegisterUser(ctx context.Context, user *models.User, firstRole string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return models.ErrAlreadyExists
		}
	}
	if len(r.users) == 0 {
		if role, ok := r.roles[firstRole]; ok {
			user.RoleID = &role.ID
			user.RoleName = role.Name
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	r.users[user.ID] = *user
	r.track(user.ID)
	return nil
}

func (r *MemoryRepository) SetUserRole(ctx context.Context, userID string, role *models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	roleID := role.ID
	u.RoleID = &roleID
	u.RoleName = role.Name
	u.UpdatedAt = now()
	r.users[userID] = u
	return nil
}

// Role operations
func (r *MemoryRepository) CreateRole(ctx context.Context, role *models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[role.Name]; ok {
		return models.ErrAlreadyExists
	}
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.Permissions == nil {
		role.Permissions = pq.StringArray{}
	}
	role.CreatedAt = now()
	r.roles[role.Name] = *role
	return nil
}

func (r *MemoryRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role, ok := r.roles[name]; ok {
		return &role, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roles := make([]models.Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// Currency operations
func (r *MemoryRepository) CreateCurrency(ctx context.Context, currency *models.CurrencyType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.currencies[currency.Code]; ok {
		return models.ErrAlreadyExists
	}
	currency.CreatedAt = now()
	r.currencies[currency.Code] = *currency
	return nil
}

func (r *MemoryRepository) GetCurrency(ctx context.Context, code string) (*models.CurrencyType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.currencies[code]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListCurrencies(ctx context.Context) ([]models.CurrencyType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currencies := make([]models.CurrencyType, 0, len(r.currencies))
	for _, c := range r.currencies {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Code < currencies[j].Code })
	return currencies, nil
}

// Wallet operations
func (r *MemoryRepository) CreateWallet(ctx context.Context, wallet *models.Wallet, currencies []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range currencies {
		if _, ok := r.currencies[code]; !ok {
			return models.ErrInvalidInput
		}
	}

	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	ts := now()
	wallet.CreatedAt = ts
	wallet.UpdatedAt = ts
	wallet.Balances = make(map[string]decimal.Decimal, len(currencies))

	r.balances[wallet.ID] = make(map[string]decimal.Decimal, len(currencies))
	for _, code := range currencies {
		r.balances[wallet.ID][code] = decimal.Zero
		wallet.Balances[code] = decimal.Zero
	}

	stored := *wallet
	stored.Balances = nil
	r.wallets[wallet.ID] = stored
	r.track(wallet.ID)
	return nil
}

func (r *MemoryRepository) walletWithBalances(id string) models.Wallet {
	w := r.wallets[id]
	w.Balances = make(map[string]decimal.Decimal, len(r.balances[id]))
	for code, b := range r.balances[id] {
		w.Balances[code] = b
	}
	return w
}

func (r *MemoryRepository) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[id]; !ok {
		return nil, nil
	}
	w := r.walletWithBalances(id)
	return &w, nil
}

func (r *MemoryRepository) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.wallets))
	for id := range r.wallets {
		ids = append(ids, id)
	}
	r.oldestFirst(ids)

	wallets := make([]models.Wallet, 0, len(ids))
	for _, id := range ids {
		wallets = append(wallets, r.walletWithBalances(id))
	}
	return wallets, nil
}

func (r *MemoryRepository) AdjustBalance(
	ctx context.Context,
	walletID string,
	currencyCode string,
	delta decimal.Decimal,
) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delta.IsNegative() {
		return r.debit(walletID, currencyCode, delta.Neg())
	}
	return r.credit(walletID, currencyCode, delta)
}

func (r *MemoryRepository) Transfer(
	ctx context.Context,
	fromWalletID string,
	toWalletID string,
	currencyCode string,
	amount decimal.Decimal,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[toWalletID]; !ok {
		return models.ErrInvalidInput
	}
	if _, err := r.debit(fromWalletID, currencyCode, amount); err != nil {
		return err
	}
	_, err := r.credit(toWalletID, currencyCode, amount)
	return err
}

func (r *MemoryRepository) debit(walletID, currencyCode string, amount decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := r.wallets[walletID]; !ok {
		return decimal.Zero, models.ErrNotFound
	}
	balance, ok := r.balances[walletID][currencyCode]
	if !ok || balance.LessThan(amount) {
		return decimal.Zero, models.ErrInsufficientBalance
	}
	balance = balance.Sub(amount)
	r.balances[walletID][currencyCode] = balance
	return balance, nil
}

func (r *MemoryRepository) credit(walletID, currencyCode string, amount decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := r.wallets[walletID]; !ok {
		return decimal.Zero, models.ErrInvalidInput
	}
	if _, ok := r.currencies[currencyCode]; !ok {
		return decimal.Zero, models.ErrInvalidInput
	}
	balance := r.balances[walletID][currencyCode].Add(amount)
	r.balances[walletID][currencyCode] = balance
	return balance, nil
}

// Custody operations
func (r *MemoryRepository) CreateCustody(
	ctx context.Context,
	custody *models.CashCustody,
	notification *models.Notification,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if custody.RequestID != nil {
		for _, c := range r.custody {
			if c.RequestID != nil && *c.RequestID == *custody.RequestID {
				return models.ErrAlreadyExists
			}
		}
	}
	if custody.PreviousCustodyID != nil {
		if _, ok := r.custody[*custody.PreviousCustodyID]; !ok {
			return models.ErrInvalidInput
		}
	}

	if _, err := r.debit(custody.WalletID, custody.CurrencyCode, custody.Amount); err != nil {
		return err
	}

	if custody.ID == "" {
		custody.ID = uuid.New().String()
	}
	ts := now()
	custody.Status = models.CustodyPending
	custody.IsReturned = false
	custody.CreatedAt = ts
	custody.UpdatedAt = ts
	r.custody[custody.ID] = *custody
	r.track(custody.ID)

	if notification != nil {
		notification.ReferenceID = &custody.ID
		r.insertNotification(notification)
	}
	return nil
}

func (r *MemoryRepository) GetCustody(ctx context.Context, id string) (*models.CashCustody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.custody[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetCustodyByRequestID(ctx context.Context, requestID string) (*models.CashCustody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.custody {
		if c.RequestID != nil && *c.RequestID == requestID {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListCustody(ctx context.Context, filter models.CustodyFilter) ([]models.CashCustody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, c := range r.custody {
		if filter.UserID != "" && c.TreasurerID != filter.UserID && c.CashierID != filter.UserID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.WalletID != "" && c.WalletID != filter.WalletID {
			continue
		}
		ids = append(ids, id)
	}
	r.newestFirst(ids)

	records := make([]models.CashCustody, 0, len(ids))
	for _, id := range ids {
		records = append(records, r.custody[id])
	}
	return records, nil
}

func (r *MemoryRepository) TransitionCustody(
	ctx context.Context,
	t CustodyTransition,
) (*models.CashCustody, []models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.custody[t.CustodyID]
	if !ok {
		return nil, nil, models.ErrNotFound
	}
	if c.Status != t.From {
		return nil, nil, models.ErrInvalidTransition
	}

	if t.CreditTreasury {
		if _, err := r.credit(c.WalletID, c.CurrencyCode, c.Amount); err != nil {
			return nil, nil, err
		}
	}

	c.Status = t.To
	c.IsReturned = c.IsReturned || t.MarkReturned
	if t.AppendNotes != "" {
		if c.Notes == "" {
			c.Notes = t.AppendNotes
		} else {
			c.Notes = c.Notes + "\n" + t.AppendNotes
		}
	}
	c.UpdatedAt = now()
	r.custody[c.ID] = c

	resolved := []models.Notification{}
	if t.ResolveRequest {
		for id, n := range r.notifications {
			if n.Type != models.NotificationCustodyRequest || n.ActionTaken ||
				n.ReferenceID == nil || *n.ReferenceID != c.ID {
				continue
			}
			n.ActionTaken = true
			n.IsRead = true
			n.UpdatedAt = now()
			r.notifications[id] = n
			resolved = append(resolved, n)
		}
	}

	if t.Notification != nil {
		t.Notification.ReferenceID = &c.ID
		r.insertNotification(t.Notification)
	}
	return &c, resolved, nil
}

// Notification operations
func (r *MemoryRepository) insertNotification(n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if len(n.ActionData) == 0 {
		n.ActionData = types.JSONText("{}")
	}
	ts := now()
	n.CreatedAt = ts
	n.UpdatedAt = ts
	r.notifications[n.ID] = *n
	r.track(n.ID)
}

func (r *MemoryRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insertNotification(notification)
	return nil
}

func (r *MemoryRepository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.notifications[id]; ok {
		return &n, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, n := range r.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		ids = append(ids, id)
	}
	r.newestFirst(ids)

	notifications := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		notifications = append(notifications, r.notifications[id])
	}
	return notifications, nil
}

func (r *MemoryRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return models.ErrNotFound
	}
	n.IsRead = true
	n.UpdatedAt = now()
	r.notifications[id] = n
	return nil
}

func (r *MemoryRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.UpdatedAt = now()
			r.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkNotificationActioned(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.ActionTaken {
		return models.ErrConflict
	}
	n.ActionTaken = true
	n.IsRead = true
	n.UpdatedAt = now()
	r.notifications[id] = n
	return nil
}

// Debt operations
func (r *MemoryRepository) CreateDebt(ctx context.Context, debt *models.Debt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[debt.WalletID]; !ok {
		return models.ErrInvalidInput
	}
	if debt.ID == "" {
		debt.ID = uuid.New().String()
	}
	ts := now()
	debt.IsPaid = false
	debt.PaidAt = nil
	debt.CreatedAt = ts
	debt.UpdatedAt = ts
	r.debts[debt.ID] = *debt
	r.track(debt.ID)
	return nil
}

func (r *MemoryRepository) GetDebt(ctx context.Context, id string) (*models.Debt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.debts[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListDebts(ctx context.Context, filter models.DebtFilter) ([]models.Debt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, d := range r.debts {
		if filter.WalletID != "" && d.WalletID != filter.WalletID {
			continue
		}
		if filter.Paid != nil && d.IsPaid != *filter.Paid {
			continue
		}
		ids = append(ids, id)
	}
	r.newestFirst(ids)

	debts := make([]models.Debt, 0, len(ids))
	for _, id := range ids {
		debts = append(debts, r.debts[id])
	}
	return debts, nil
}

func (r *MemoryRepository) MarkDebtPaid(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.debts[id]
	if !ok {
		return models.ErrNotFound
	}
	if d.IsPaid {
		return models.ErrConflict
	}
	ts := now()
	d.IsPaid = true
	d.PaidAt = &ts
	d.UpdatedAt = ts
	r.debts[id] = d
	return nil
}

func (r *MemoryRepository) DeleteDebt(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.debts[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.debts, id)
	return nil
}

// Exchange operations
func priceKey(from, to string) string {
	return from + "/" + to
}

func (r *MemoryRepository) UpsertManagerPrice(ctx context.Context, price *models.ManagerPrice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	price.UpdatedAt = now()
	r.prices[priceKey(price.FromCurrency, price.ToCurrency)] = *price
	return nil
}

func (r *MemoryRepository) GetManagerPrice(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.prices[priceKey(fromCurrency, toCurrency)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListManagerPrices(ctx context.Context) ([]models.ManagerPrice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prices := make([]models.ManagerPrice, 0, len(r.prices))
	for _, p := range r.prices {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		return priceKey(prices[i].FromCurrency, prices[i].ToCurrency) < priceKey(prices[j].FromCurrency, prices[j].ToCurrency)
	})
	return prices, nil
}

func (r *MemoryRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wallets[txn.WalletID]; !ok {
		return models.ErrNotFound
	}
	current, ok := r.balances[txn.WalletID][txn.ToCurrency]
	available := current
	if txn.FromCurrency == txn.ToCurrency {
		available = available.Add(txn.FromAmount)
	}
	if !ok || available.LessThan(txn.ToAmount) {
		return models.ErrInsufficientBalance
	}

	if _, err := r.credit(txn.WalletID, txn.FromCurrency, txn.FromAmount); err != nil {
		return err
	}
	if _, err := r.debit(txn.WalletID, txn.ToCurrency, txn.ToAmount); err != nil {
		return err
	}

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = now()
	r.transactions[txn.ID] = *txn
	r.track(txn.ID)
	return nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, t := range r.transactions {
		if filter.CashierID != "" && t.CashierID != filter.CashierID {
			continue
		}
		if filter.WalletID != "" && t.WalletID != filter.WalletID {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		ids = append(ids, id)
	}
	r.newestFirst(ids)

	txns := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		txns = append(txns, r.transactions[id])
	}
	return txns, nil
}

var _ Repository = (*MemoryRepository)(nil)
