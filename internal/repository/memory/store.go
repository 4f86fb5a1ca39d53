// Package memory はリポジトリのインメモリ実装。テストとSTORE_DRIVER=memoryで使う。
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
)

// Storeは全テーブルを1つのmutexで守る
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users      map[int64]model.User
	revoked    map[string]model.RevokedToken
	tokens     map[int64]model.OneTimeToken
	products   map[int64]model.Product
	auditLogs  []model.AuditLog
	nextUserID int64
	nextToken  int64
	nextProd   int64
	nextPres   int64
	nextAudit  int64
}

func NewStore() *Store {
	return &Store{
		users:    map[int64]model.User{},
		revoked:  map[string]model.RevokedToken{},
		tokens:   map[int64]model.OneTimeToken{},
		products: map[int64]model.Product{},
	}
}

func (s *Store) Users() repo.UserRepository                 { return &userRepo{s: s} }
func (s *Store) RevokedTokens() repo.RevokedTokenRepository { return &revokedRepo{s: s} }
func (s *Store) OneTimeTokens() repo.OneTimeTokenRepository { return &tokenRepo{s: s} }
func (s *Store) Products() repo.ProductRepository           { return &productRepo{s: s} }
func (s *Store) AuditLogs() repo.AuditLogRepository         { return &auditRepo{s: s} }

// WithinTxはfnがエラーを返したら、fnが書き込んだ行だけを元に戻す。
// Tx同士は直列。Tx外の書き込みはTxが触っていない行ならそのまま残る
func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := newJournal()
	if err := fn(txRepos{s: s, undo: j}); err != nil {
		s.rollback(j)
		return err
	}
	return ctx.Err()
}

type txRepos struct {
	s    *Store
	undo *journal
}

func (t txRepos) Users() repo.UserRepository { return &userRepo{s: t.s, undo: t.undo} }
func (t txRepos) OneTimeTokens() repo.OneTimeTokenRepository {
	return &tokenRepo{s: t.s, undo: t.undo}
}
func (t txRepos) AuditLogs() repo.AuditLogRepository { return &auditRepo{s: t.s, undo: t.undo} }

// journalはTx内で最初に書き込む直前の行を覚えておく。nilは「行がなかった」
type journal struct {
	users  map[int64]*model.User
	tokens map[int64]*model.OneTimeToken
	audits map[int64]bool
}

func newJournal() *journal {
	return &journal{
		users:  map[int64]*model.User{},
		tokens: map[int64]*model.OneTimeToken{},
		audits: map[int64]bool{},
	}
}

// 以下はs.muを持った状態で呼ぶ。Tx外（j == nil）なら何もしない
func (j *journal) user(s *Store, id int64) {
	if j == nil {
		return
	}
	if _, seen := j.users[id]; seen {
		return
	}
	if u, ok := s.users[id]; ok {
		j.users[id] = &u
		return
	}
	j.users[id] = nil
}

func (j *journal) token(s *Store, id int64) {
	if j == nil {
		return
	}
	if _, seen := j.tokens[id]; seen {
		return
	}
	if t, ok := s.tokens[id]; ok {
		j.tokens[id] = &t
		return
	}
	j.tokens[id] = nil
}

func (j *journal) audit(id int64) {
	if j != nil {
		j.audits[id] = true
	}
}

func (s *Store) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range j.users {
		if u == nil {
			delete(s.users, id)
			continue
		}
		s.users[id] = *u
	}
	for id, t := range j.tokens {
		if t == nil {
			delete(s.tokens, id)
			continue
		}
		s.tokens[id] = *t
	}
	if len(j.audits) > 0 {
		s.auditLogs = slices.DeleteFunc(s.auditLogs, func(l model.AuditLog) bool { return j.audits[l.ID] })
	}
}

var (
	_ repo.TransactionManager = (*Store)(nil)
	_ repo.TxRepos            = txRepos{}
)

// =====================
// users
// =====================

type userRepo struct {
	s    *Store
	undo *journal
}

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repo.ErrConflict
		}
		if user.GoogleID != nil && u.GoogleID != nil && *u.GoogleID == *user.GoogleID {
			return repo.ErrConflict
		}
	}

	r.s.nextUserID++
	now := time.Now()
	user.ID = r.s.nextUserID
	r.undo.user(r.s, user.ID)
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepo) FindByID(_ context.Context, userID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.findBy(func(u model.User) bool { return u.Email == email })
}

func (r *userRepo) FindByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return r.findBy(func(u model.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (r *userRepo) findBy(match func(model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (r *userRepo) ListActive(_ context.Context, limit int, offset int) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.User
	for _, u := range r.s.users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

func (r *userRepo) Update(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; !ok {
		return repo.ErrUserNotFound
	}
	for id, u := range r.s.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return repo.ErrConflict
		}
		if user.GoogleID != nil && u.GoogleID != nil && *u.GoogleID == *user.GoogleID {
			return repo.ErrConflict
		}
	}
	r.undo.user(r.s, user.ID)
	user.UpdatedAt = time.Now()
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepo) UpdateLockout(_ context.Context, userID int64, st repo.LockoutState) error {
	return r.mutate(userID, func(u *model.User) {
		u.FailedLoginAttempts = st.FailedLoginAttempts
		u.LockedUntil = st.LockedUntil
		u.LastFailedLoginAt = st.LastFailedLoginAt
	})
}

func (r *userRepo) TouchActivity(_ context.Context, userID int64, at time.Time) error {
	return r.mutate(userID, func(u *model.User) { u.LastActivityAt = &at })
}

func (r *userRepo) RecordLogin(_ context.Context, userID int64, at time.Time) error {
	return r.mutate(userID, func(u *model.User) {
		u.LastLoginAt = &at
		u.LastActivityAt = &at
	})
}

func (r *userRepo) SetTokensRevokedBefore(_ context.Context, userID int64, at time.Time) error {
	return r.mutate(userID, func(u *model.User) { u.TokensRevokedBefore = &at })
}

func (r *userRepo) UpdatePassword(_ context.Context, userID int64, passwordHash string, confirm bool) error {
	return r.mutate(userID, func(u *model.User) {
		u.PasswordHash = &passwordHash
		if confirm {
			u.IsConfirmed = true
		}
	})
}

func (r *userRepo) mutate(userID int64, fn func(u *model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return repo.ErrUserNotFound
	}
	r.undo.user(r.s, userID)
	fn(&u)
	u.UpdatedAt = time.Now()
	r.s.users[userID] = u
	return nil
}

// =====================
// revoked_tokens
// =====================

type revokedRepo struct{ s *Store }

func (r *revokedRepo) Upsert(_ context.Context, token model.RevokedToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	r.s.revoked[token.JTI] = token
	return nil
}

func (r *revokedRepo) Find(_ context.Context, jti string) (*model.RevokedToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.revoked[jti]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

func (r *revokedRepo) Delete(_ context.Context, jti string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.revoked, jti)
	return nil
}

func (r *revokedRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for jti, t := range r.s.revoked {
		if !t.ExpiresAt.After(now) {
			delete(r.s.revoked, jti)
			n++
		}
	}
	return n, nil
}

// =====================
// one_time_tokens
// =====================

type tokenRepo struct {
	s    *Store
	undo *journal
}

func (r *tokenRepo) Create(_ context.Context, token *model.OneTimeToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tokens {
		if t.TokenHash == token.TokenHash {
			return repo.ErrConflict
		}
	}
	r.s.nextToken++
	token.ID = r.s.nextToken
	r.undo.token(r.s, token.ID)
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	r.s.tokens[token.ID] = *token
	return nil
}

func matches(t model.OneTimeToken, q repo.OneTimeTokenQuery, now time.Time) bool {
	if t.TokenHash != q.TokenHash || !t.IsUsable(now) {
		return false
	}
	if q.Email != "" && t.Email != q.Email {
		return false
	}
	return slices.Contains(q.Purposes, t.Purpose)
}

func (r *tokenRepo) FindActive(_ context.Context, q repo.OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tokens {
		if matches(t, q, now) {
			return &t, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *tokenRepo) Consume(_ context.Context, q repo.OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, t := range r.s.tokens {
		if matches(t, q, now) {
			r.undo.token(r.s, id)
			used := now
			t.UsedAt = &used
			r.s.tokens[id] = t
			return &t, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *tokenRepo) InvalidateForUser(_ context.Context, userID int64, purposes []model.TokenPurpose, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, t := range r.s.tokens {
		if t.UserID == userID && t.UsedAt == nil && slices.Contains(purposes, t.Purpose) {
			r.undo.token(r.s, id)
			used := now
			t.UsedAt = &used
			r.s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteIfExpired(_ context.Context, tokenHash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, t := range r.s.tokens {
		if t.TokenHash == tokenHash && !t.ExpiresAt.After(now) {
			r.undo.token(r.s, id)
			delete(r.s.tokens, id)
		}
	}
	return nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, t := range r.s.tokens {
		if !t.ExpiresAt.After(now) || t.UsedAt != nil {
			r.undo.token(r.s, id)
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// =====================
// products
// =====================

type productRepo struct{ s *Store }

func (r *productRepo) ListPublic(_ context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(q.Q))
	var out []model.Product
	for _, p := range r.s.products {
		if !p.IsActive || p.DeletedAt.Valid {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		if q.Category != "" && !strings.EqualFold(p.Category, q.Category) {
			continue
		}
		if q.MinPrice != nil && p.Price < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && p.Price > *q.MaxPrice {
			continue
		}
		out = append(out, cloneProduct(p))
	}

	switch q.Sort {
	case "price_asc":
		sort.Slice(out, func(i, j int) bool {
			if out[i].Price == out[j].Price {
				return out[i].ID < out[j].ID
			}
			return out[i].Price < out[j].Price
		})
	case "price_desc":
		sort.Slice(out, func(i, j int) bool {
			if out[i].Price == out[j].Price {
				return out[i].ID > out[j].ID
			}
			return out[i].Price > out[j].Price
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}

	total := int64(len(out))
	return page(out, q.Limit, (q.Page-1)*q.Limit), total, nil
}

func (r *productRepo) FindByID(_ context.Context, id int64) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (r *productRepo) Create(_ context.Context, p model.Product) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextProd++
	p.ID = r.s.nextProd
	r.assignPresentationIDs(&p)
	r.s.products[p.ID] = cloneProduct(p)
	return p, nil
}

func (r *productRepo) Update(_ context.Context, p model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[p.ID]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	r.assignPresentationIDs(&p)
	r.s.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *productRepo) SoftDelete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok || p.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	p.DeletedAt.Time = time.Now()
	p.DeletedAt.Valid = true
	r.s.products[id] = p
	return nil
}

func (r *productRepo) assignPresentationIDs(p *model.Product) {
	for i := range p.Presentations {
		r.s.nextPres++
		p.Presentations[i].ID = r.s.nextPres
		p.Presentations[i].ProductID = p.ID
	}
}

func cloneProduct(p model.Product) model.Product {
	p.Features = slices.Clone(p.Features)
	p.Presentations = slices.Clone(p.Presentations)
	return p
}

// =====================
// audit_logs
// =====================

type auditRepo struct {
	s    *Store
	undo *journal
}

func (r *auditRepo) Create(_ context.Context, log model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAudit++
	log.ID = r.s.nextAudit
	r.undo.audit(log.ID)
	r.s.auditLogs = append(r.s.auditLogs, log)
	return nil
}

func (r *auditRepo) List(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.AuditLog
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		l := r.s.auditLogs[i]
		if f.ActorUserID != nil && l.ActorUserID != *f.ActorUserID {
			continue
		}
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.ResourceType != nil && l.ResourceType != *f.ResourceType {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, l)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return page(out, limit, max(f.Offset, 0)), nil
}

func page[T any](items []T, limit int, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
