package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/enhancer"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
)

var testPolicy = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

// memDB is a single in-memory backing store shared by the fake repositories
type memDB struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	tokens   map[string]*domain.RefreshToken
	links    map[string]*domain.OAuthProvider
	photos   map[string]*domain.PhotoJob
	payments map[string]*domain.PaymentIntent

	// photoCreateErrs are returned by successive PhotoRepository.Create calls
	photoCreateErrs []error
	transitions     int
}

func newMemDB() *memDB {
	return &memDB{
		users:    make(map[string]*domain.User),
		tokens:   make(map[string]*domain.RefreshToken),
		links:    make(map[string]*domain.OAuthProvider),
		photos:   make(map[string]*domain.PhotoJob),
		payments: make(map[string]*domain.PaymentIntent),
	}
}

func (db *memDB) repos() *repository.Repositories {
	return &repository.Repositories{
		User:          &fakeUserRepo{db},
		Token:         &fakeTokenRepo{db},
		OAuthProvider: &fakeOAuthRepo{db},
		Photo:         &fakePhotoRepo{db},
		Payment:       &fakePaymentRepo{db},
	}
}

func (db *memDB) addUser(u *domain.User) *domain.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.IsActive = true
	copied := *u
	db.users[u.ID] = &copied
	return u
}

func (db *memDB) addPhoto(owner *string, createdAt time.Time) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := uuid.NewString()
	db.photos[id] = &domain.PhotoJob{ID: id, UserID: owner, CreatedAt: createdAt}
	return id
}

func (db *memDB) payment(sessionID string) domain.PaymentIntent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.payments[sessionID]
}

func (db *memDB) photoOwner(id string) *string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.photos[id].UserID
}

type fakeUserRepo struct{ db *memDB }

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	r.db.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (r *fakeUserRepo) SetFreeAccess(ctx context.Context, userID string, enabled bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.HasFreeAccess = enabled
	return nil
}

func (r *fakeUserRepo) ListWithSummary(ctx context.Context) ([]*domain.UserSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.UserSummary
	for _, u := range r.db.users {
		out = append(out, &domain.UserSummary{User: *u})
	}
	return out, nil
}

type fakeTokenRepo struct{ db *memDB }

func (r *fakeTokenRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tokens[token.TokenHash]; ok {
		return repository.ErrDuplicateToken
	}
	token.ID = uuid.NewString()
	copied := *token
	r.db.tokens[token.TokenHash] = &copied
	return nil
}

func (r *fakeTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTokenRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tokens[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.tokens, tokenHash)
	return nil
}

func (r *fakeTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for hash, t := range r.db.tokens {
		if time.Now().After(t.ExpiresAt) {
			delete(r.db.tokens, hash)
			n++
		}
	}
	return n, nil
}

type fakeOAuthRepo struct{ db *memDB }

func linkKey(provider, subject string) string { return provider + "|" + subject }

func (r *fakeOAuthRepo) Create(ctx context.Context, provider *domain.OAuthProvider) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := linkKey(provider.Provider, provider.ProviderUserID)
	if _, ok := r.db.links[key]; ok {
		return repository.ErrDuplicateOAuthProvider
	}
	provider.ID = uuid.NewString()
	copied := *provider
	r.db.links[key] = &copied
	return nil
}

func (r *fakeOAuthRepo) CreateWithUser(ctx context.Context, user *domain.User, provider *domain.OAuthProvider) error {
	if err := (&fakeUserRepo{r.db}).Create(ctx, user); err != nil {
		return err
	}
	provider.UserID = user.ID
	return r.Create(ctx, provider)
}

func (r *fakeOAuthRepo) GetByProvider(ctx context.Context, provider, providerUserID string) (*domain.OAuthProvider, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	link, ok := r.db.links[linkKey(provider, providerUserID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *link
	return &copied, nil
}

type fakePhotoRepo struct{ db *memDB }

func (r *fakePhotoRepo) Create(ctx context.Context, job *domain.PhotoJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if len(r.db.photoCreateErrs) > 0 {
		err := r.db.photoCreateErrs[0]
		r.db.photoCreateErrs = r.db.photoCreateErrs[1:]
		if err != nil {
			return err
		}
	}
	copied := *job
	r.db.photos[job.ID] = &copied
	if job.UserID != nil {
		if u, ok := r.db.users[*job.UserID]; ok {
			u.ImagesProcessed++
		}
	}
	return nil
}

func (r *fakePhotoRepo) GetByID(ctx context.Context, id string) (*domain.PhotoJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	job, ok := r.db.photos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	copied.OriginalData, copied.EnhancedData = nil, nil
	return &copied, nil
}

func (r *fakePhotoRepo) GetInlineData(ctx context.Context, id, artifact string) ([]byte, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	job, ok := r.db.photos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	data := job.OriginalData
	if artifact == domain.ArtifactEnhanced {
		data = job.EnhancedData
	}
	if len(data) == 0 {
		return nil, repository.ErrNotFound
	}
	return data, nil
}

func (r *fakePhotoRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.PhotoJob, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var owned []*domain.PhotoJob
	for _, job := range r.db.photos {
		if job.OwnedBy(userID) {
			copied := *job
			owned = append(owned, &copied)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	total := len(owned)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (r *fakePhotoRepo) Delete(ctx context.Context, id, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	job, ok := r.db.photos[id]
	if !ok || !job.OwnedBy(userID) {
		return repository.ErrNotFound
	}
	delete(r.db.photos, id)
	if u, ok := r.db.users[userID]; ok && u.ImagesProcessed > 0 {
		u.ImagesProcessed--
	}
	return nil
}

func (r *fakePhotoRepo) ClaimRecent(ctx context.Context, userID string, ids []string, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, id := range ids {
		job, ok := r.db.photos[id]
		if ok && job.UserID == nil && !job.CreatedAt.Before(cutoff) {
			owner := userID
			job.UserID = &owner
			n++
		}
	}
	return n, nil
}

func (r *fakePhotoRepo) ClaimAllRecent(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	ids := make([]string, 0, len(r.db.photos))
	for id := range r.db.photos {
		ids = append(ids, id)
	}
	r.db.mu.Unlock()
	return r.ClaimRecent(ctx, userID, ids, cutoff)
}

func (r *fakePhotoRepo) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, id := range ids {
		if job, ok := r.db.photos[id]; ok && job.OwnedBy(userID) {
			n++
		}
	}
	return n, nil
}

type fakePaymentRepo struct{ db *memDB }

func (r *fakePaymentRepo) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.payments[intent.ProviderSessionID]; ok {
		return repository.ErrDuplicateSession
	}
	copied := *intent
	r.db.payments[intent.ProviderSessionID] = &copied
	return nil
}

func (r *fakePaymentRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.PaymentIntent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePaymentRepo) ListCompletedByUser(ctx context.Context, userID string) ([]*domain.PaymentIntent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.PaymentIntent
	for _, p := range r.db.payments {
		if p.UserID == userID && p.Status == domain.PaymentCompleted {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(*out[j].CompletedAt) })
	return out, nil
}

func (r *fakePaymentRepo) mark(sessionID string, apply func(*domain.PaymentIntent)) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[sessionID]
	if !ok || p.Status != domain.PaymentPending {
		return false, nil
	}
	apply(p)
	r.db.transitions++
	return true, nil
}

func (r *fakePaymentRepo) MarkCompleted(ctx context.Context, sessionID string, paymentID *string, at time.Time) (bool, error) {
	return r.mark(sessionID, func(p *domain.PaymentIntent) {
		p.Status = domain.PaymentCompleted
		if paymentID != nil {
			p.ProviderPaymentID = paymentID
		}
		p.CompletedAt = &at
	})
}

func (r *fakePaymentRepo) MarkFailed(ctx context.Context, sessionID string) (bool, error) {
	return r.mark(sessionID, func(p *domain.PaymentIntent) { p.Status = domain.PaymentFailed })
}

func (r *fakePaymentRepo) MarkCancelled(ctx context.Context, sessionID string) (bool, error) {
	return r.mark(sessionID, func(p *domain.PaymentIntent) { p.Status = domain.PaymentCancelled })
}

// fakeProvider records checkout calls and verifies webhooks with a real client
type fakeProvider struct {
	mu        sync.Mutex
	created   []checkout.SessionParams
	sessions  map[string]*checkout.Session
	createErr error
	retrieved int
	webhooks  *checkout.Client
}

const testWebhookSecret = "whsec_test"

func newFakeProvider() *fakeProvider {
	client, err := checkout.NewClient(testPaymentConfig(), zap.NewNop())
	if err != nil {
		panic(err)
	}
	return &fakeProvider{sessions: make(map[string]*checkout.Session), webhooks: client}
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, params checkout.SessionParams) (*checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, params)
	id := "cs_test_" + uuid.NewString()
	session := &checkout.Session{
		ID:            id,
		URL:           "https://checkout.example/pay/" + id,
		Status:        checkout.SessionStatusOpen,
		PaymentStatus: checkout.PaymentStatusUnpaid,
	}
	p.sessions[id] = session
	return session, nil
}

func (p *fakeProvider) RetrieveSession(ctx context.Context, sessionID string) (*checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieved++
	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, checkout.ErrRejected
	}
	copied := *s
	return &copied, nil
}

func (p *fakeProvider) ParseWebhook(payload []byte, signatureHeader string) (*checkout.Event, error) {
	return p.webhooks.ParseWebhook(payload, signatureHeader)
}

func (p *fakeProvider) setSession(id, status, paymentStatus, paymentIntent string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = &checkout.Session{ID: id, Status: status, PaymentStatus: paymentStatus, PaymentIntentID: paymentIntent}
}

type fakeEnhancer struct {
	result *enhancer.Result
	err    error
	calls  int
	prompt string
}

func (e *fakeEnhancer) Enhance(ctx context.Context, image []byte, mimeType, prompt string) (*enhancer.Result, error) {
	e.calls++
	e.prompt = prompt
	return e.result, e.err
}

type fakeBlacklist struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{tokens: make(map[string]bool)}
}

func (b *fakeBlacklist) AddToken(ctx context.Context, token string, expiry time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = true
	return nil
}

func (b *fakeBlacklist) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[token], nil
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]bool
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]bool)}
}

func (s *fakeStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = true
	return nil
}

func (s *fakeStateStore) Consume(ctx context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.states[state]
	delete(s.states, state)
	return ok, nil
}

type fakeClaimer struct {
	claimed int64
	users   []string
}

func (c *fakeClaimer) ClaimForUser(ctx context.Context, userID string) (int64, error) {
	c.users = append(c.users, userID)
	return c.claimed, nil
}
