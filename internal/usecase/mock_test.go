//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/i18n"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	return tr
}

// -----------------------------
// Users
// -----------------------------

type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User

	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: make(map[int64]*model.User)}
}

func (r *MockUserRepo) Seed(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.TelegramID] = &cp
}

func (r *MockUserRepo) Get(tgID int64) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[tgID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.Seed(u)
	return nil
}

func (r *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if r.FindByTelegramIDFunc != nil {
		return r.FindByTelegramIDFunc(ctx, tx, tgID)
	}
	if u := r.Get(tgID); u != nil {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByTelegramIDForUpdate(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return r.FindByTelegramID(ctx, tx, tgID)
}

func (r *MockUserRepo) UpdateContacts(ctx context.Context, tx repository.Tx, tgID int64, phone, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Phone, u.Email = &phone, &email
	return nil
}

func (r *MockUserRepo) AddCredits(ctx context.Context, tx repository.Tx, tgID int64, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[tgID]
	if !ok {
		return domain.ErrInvalidArgument
	}
	return u.AddCredits(delta)
}

func (r *MockUserRepo) DecrementSubscriptionDays(ctx context.Context, tx repository.Tx) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.SubscribeDaysLeft > 0 {
			u.SubscribeDaysLeft--
			n++
		}
	}
	return n, nil
}

func (r *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

// -----------------------------
// VPN configurations
// -----------------------------

type MockVpnConfigRepo struct {
	mu      sync.Mutex
	nextID  int64
	configs map[int64]*model.VpnConfig

	ClaimFreeFunc func(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, device model.Device) (*model.VpnConfig, error)
}

var _ repository.VpnConfigRepository = (*MockVpnConfigRepo)(nil)

func NewMockVpnConfigRepo() *MockVpnConfigRepo {
	return &MockVpnConfigRepo{configs: make(map[int64]*model.VpnConfig)}
}

// AddFree seeds n unassigned configurations and returns their ids.
func (r *MockVpnConfigRepo) AddFree(n int) []int64 {
	var ids []int64
	for i := 0; i < n; i++ {
		r.mu.Lock()
		r.nextID++
		id := r.nextID
		r.configs[id] = &model.VpnConfig{
			ID:       id,
			FileID:   fmt.Sprintf("file-%d", id),
			FileName: fmt.Sprintf("peer%d.conf", id),
			Path:     fmt.Sprintf("/configs/peer%d.conf", id),
		}
		r.mu.Unlock()
		ids = append(ids, id)
	}
	return ids
}

func (r *MockVpnConfigRepo) Put(c *model.VpnConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.configs[c.ID] = &cp
	if c.ID > r.nextID {
		r.nextID = c.ID
	}
}

func (r *MockVpnConfigRepo) Get(id int64) *model.VpnConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *MockVpnConfigRepo) CreateIfAbsent(ctx context.Context, tx repository.Tx, c *model.VpnConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.configs {
		if existing.FileID == c.FileID {
			return false, nil
		}
	}
	r.nextID++
	c.ID = r.nextID
	cp := *c
	r.configs[c.ID] = &cp
	return true, nil
}

func (r *MockVpnConfigRepo) ExistsByFileID(ctx context.Context, tx repository.Tx, fileID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.FileID == fileID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockVpnConfigRepo) count(assigned bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.configs {
		if c.Assigned == assigned {
			n++
		}
	}
	return n
}

func (r *MockVpnConfigRepo) CountFree(ctx context.Context, tx repository.Tx) (int, error) {
	return r.count(false), nil
}

func (r *MockVpnConfigRepo) CountAssigned(ctx context.Context, tx repository.Tx) (int, error) {
	return r.count(true), nil
}

func (r *MockVpnConfigRepo) ClaimFree(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, device model.Device) (*model.VpnConfig, error) {
	if r.ClaimFreeFunc != nil {
		return r.ClaimFreeFunc(ctx, tx, userID, expiresAt, device)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := r.configs[id]
		if !c.Assigned {
			c.Assign(userID, expiresAt, device)
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNoFreeConfigs
}

func (r *MockVpnConfigRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.VpnConfig, error) {
	if c := r.Get(id); c != nil {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockVpnConfigRepo) FindByOwner(ctx context.Context, tx repository.Tx, userID int64) ([]*model.VpnConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.VpnConfig
	for _, c := range r.configs {
		if c.OwnedBy(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockVpnConfigRepo) UpdateExpiry(ctx context.Context, tx repository.Tx, id int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	exp := expiresAt
	c.ExpiresAt = &exp
	return nil
}

func (r *MockVpnConfigRepo) FindExpired(ctx context.Context, tx repository.Tx, day time.Time) ([]*model.VpnConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.VpnConfig
	for _, c := range r.configs {
		if c.Assigned && c.ExpiresAt != nil && c.ExpiresAt.Before(day) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------
// Invoices
// -----------------------------

type MockInvoiceRepo struct {
	mu       sync.Mutex
	nextID   int64
	invoices map[int64]*model.Invoice
}

var _ repository.InvoiceRepository = (*MockInvoiceRepo)(nil)

func NewMockInvoiceRepo() *MockInvoiceRepo {
	return &MockInvoiceRepo{invoices: make(map[int64]*model.Invoice)}
}

func (r *MockInvoiceRepo) Get(userID int64) *model.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[userID]
	if !ok {
		return nil
	}
	cp := *inv
	return &cp
}

func (r *MockInvoiceRepo) Replace(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	cp := *inv
	r.invoices[inv.UserID] = &cp
	return nil
}

func (r *MockInvoiceRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Invoice, error) {
	if inv := r.Get(userID); inv != nil {
		return inv, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockInvoiceRepo) FindByUserForUpdate(ctx context.Context, tx repository.Tx, userID int64) (*model.Invoice, error) {
	return r.FindByUser(ctx, tx, userID)
}

func (r *MockInvoiceRepo) Update(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.UserID]; !ok {
		return domain.ErrNotFound
	}
	cp := *inv
	r.invoices[inv.UserID] = &cp
	return nil
}

func (r *MockInvoiceRepo) DeleteByUser(ctx context.Context, tx repository.Tx, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invoices, userID)
	return nil
}

func (r *MockInvoiceRepo) CountInvoices(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invoices), nil
}

// -----------------------------
// Sessions, reminders, cache
// -----------------------------

type MockSessionRepo struct {
	mu       sync.Mutex
	sessions map[int64]*model.Session
}

var _ repository.SessionRepository = (*MockSessionRepo)(nil)

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{sessions: make(map[int64]*model.Session)}
}

func (r *MockSessionRepo) Get(ctx context.Context, userID int64) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	cp.MessageIDs = append([]int(nil), s.MessageIDs...)
	return &cp, nil
}

func (r *MockSessionRepo) Save(ctx context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.MessageIDs = append([]int(nil), s.MessageIDs...)
	r.sessions[s.UserID] = &cp
	return nil
}

func (r *MockSessionRepo) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

func (r *MockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for id, s := range r.sessions {
		if s.Expired(now) {
			out = append(out, s)
			delete(r.sessions, id)
		}
	}
	return out, nil
}

type MockReminderQueue struct {
	mu    sync.Mutex
	items []*model.Reminder
}

var _ repository.ReminderQueue = (*MockReminderQueue)(nil)

func (q *MockReminderQueue) Schedule(ctx context.Context, r *model.Reminder) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *r
	q.items = append(q.items, &cp)
	return nil
}

func (q *MockReminderQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]*model.Reminder, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due, rest []*model.Reminder
	for _, r := range q.items {
		if !r.DueAt.After(now) && len(due) < limit {
			due = append(due, r)
			continue
		}
		rest = append(rest, r)
	}
	q.items = rest
	return due, nil
}

func (q *MockReminderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type MockInstructionCache struct {
	mu   sync.Mutex
	rows []model.Instruction
	set  bool
	Sets int
}

var _ repository.InstructionCache = (*MockInstructionCache)(nil)

func (c *MockInstructionCache) Get(ctx context.Context) ([]model.Instruction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return nil, domain.ErrNotFound
	}
	return append([]model.Instruction(nil), c.rows...), nil
}

func (c *MockInstructionCache) Set(ctx context.Context, rows []model.Instruction, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append([]model.Instruction(nil), rows...)
	c.set = true
	c.Sets++
	return nil
}

// -----------------------------
// Transactions
// -----------------------------

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// -----------------------------
// Adapters
// -----------------------------

type sentDocument struct {
	ChatID   int64
	FileName string
	Caption  string
	Body     string
}

type MockTelegramBot struct {
	mu        sync.Mutex
	nextID    int
	Messages  []adapter.SendMessageParams
	Documents []sentDocument
	Deleted   map[int64][]int

	SendMessageFunc  func(ctx context.Context, p adapter.SendMessageParams) (int, error)
	SendDocumentFunc func(ctx context.Context, p adapter.SendDocumentParams) (int, error)
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func NewMockTelegramBot() *MockTelegramBot {
	return &MockTelegramBot{Deleted: make(map[int64][]int)}
}

func (m *MockTelegramBot) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Messages = append(m.Messages, p)
	return m.nextID, nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	return m.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:      telegramID,
		Text:        text,
		ReplyMarkup: &adapter.ReplyMarkup{Inline: rows},
	})
}

func (m *MockTelegramBot) SendDocument(ctx context.Context, p adapter.SendDocumentParams) (int, error) {
	if m.SendDocumentFunc != nil {
		return m.SendDocumentFunc(ctx, p)
	}
	body, _ := io.ReadAll(p.Reader)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Documents = append(m.Documents, sentDocument{ChatID: p.ChatID, FileName: p.FileName, Caption: p.Caption, Body: string(body)})
	return m.nextID, nil
}

func (m *MockTelegramBot) SendPhoto(ctx context.Context, p adapter.SendPhotoParams) (int, error) {
	return m.SendMessage(ctx, adapter.SendMessageParams{ChatID: p.ChatID, Text: p.Caption, ParseMode: p.ParseMode, ReplyMarkup: p.ReplyMarkup})
}

func (m *MockTelegramBot) DeleteMessages(ctx context.Context, chatID int64, ids []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted[chatID] = append(m.Deleted[chatID], ids...)
	return nil
}

func (m *MockTelegramBot) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Messages))
	for _, p := range m.Messages {
		out = append(out, p.Text)
	}
	return out
}

type MockPaymentGateway struct {
	mu      sync.Mutex
	Sent    []model.PaymentIntent
	SendErr error
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) SendInvoice(ctx context.Context, chatID int64, intent model.PaymentIntent) (int, error) {
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, intent)
	return 900 + len(m.Sent), nil
}

type MockAlertSink struct {
	mu     sync.Mutex
	Alerts []string
}

var _ adapter.AlertSink = (*MockAlertSink)(nil)

func (m *MockAlertSink) Alert(ctx context.Context, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, text)
}

func (m *MockAlertSink) Contains(sub string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Alerts {
		if strings.Contains(a, sub) {
			return true
		}
	}
	return false
}

type MockFileRepo struct {
	Files       []adapter.RemoteFile
	Contents    map[string]string
	DownloadErr map[string]error
	Downloads   int
}

var _ adapter.FileRepository = (*MockFileRepo)(nil)

func (m *MockFileRepo) List(ctx context.Context) ([]adapter.RemoteFile, error) {
	return m.Files, nil
}

func (m *MockFileRepo) Download(ctx context.Context, fileID string, w io.Writer) error {
	if err := m.DownloadErr[fileID]; err != nil {
		return err
	}
	m.Downloads++
	_, err := io.WriteString(w, m.Contents[fileID])
	return err
}

func (m *MockFileRepo) ViewLink(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view?usp=drive_link"
}

type MockFileStore struct {
	mu      sync.Mutex
	files   map[string]string
	Locked  int
	Unlocks int
}

var _ adapter.ConfigFileStore = (*MockFileStore)(nil)

func NewMockFileStore() *MockFileStore {
	return &MockFileStore{files: make(map[string]string)}
}

func (s *MockFileStore) Lock(ctx context.Context) (func() error, error) {
	s.mu.Lock()
	s.Locked++
	s.mu.Unlock()
	return func() error {
		s.mu.Lock()
		s.Unlocks++
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *MockFileStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files["/configs/"+name]
	return ok
}

func (s *MockFileStore) Save(name string, fill func(w io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := fill(&buf); err != nil {
		return "", err
	}
	path := "/configs/" + name
	s.Put(path, buf.String())
	return path, nil
}

func (s *MockFileStore) Put(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = body
}

func (s *MockFileStore) Open(path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type MockVPNServer struct {
	mu       sync.Mutex
	Disabled []string
	Err      error
}

var _ adapter.VPNServer = (*MockVPNServer)(nil)

func (m *MockVPNServer) EnableClient(ctx context.Context, name string) error { return m.Err }

func (m *MockVPNServer) DisableClient(ctx context.Context, name string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Disabled = append(m.Disabled, name)
	return nil
}

type MockInstructionSource struct {
	Data  []model.Instruction
	Err   error
	Calls int
}

var _ adapter.InstructionSource = (*MockInstructionSource)(nil)

func (m *MockInstructionSource) Rows(ctx context.Context) ([]model.Instruction, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Data, nil
}
