package services_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/bot"
	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/setting"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence"
	"github.com/k4lantar4/remnabot/pkg/composables"
)

// fakeTx satisfies pgx.Tx so service transactions run against the in-memory
// repositories below.
type fakeTx struct{}

func (fakeTx) Begin(_ context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(_ context.Context) error          { return nil }
func (fakeTx) Rollback(_ context.Context) error        { return nil }
func (fakeTx) Conn() *pgx.Conn                         { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects          { return pgx.LargeObjects{} }

func (fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults {
	return nil
}

func (fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (fakeTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func txContext() context.Context {
	return composables.WithTx(context.Background(), fakeTx{})
}

type settingKey struct {
	tenantID uuid.UUID
	name     string
}

type memorySettingRepo struct {
	mu       sync.Mutex
	flags    map[settingKey]*setting.FeatureFlag
	settings map[settingKey]*setting.Setting
}

func newMemorySettingRepo() *memorySettingRepo {
	return &memorySettingRepo{
		flags:    map[settingKey]*setting.FeatureFlag{},
		settings: map[settingKey]*setting.Setting{},
	}
}

func (r *memorySettingRepo) GetFlag(_ context.Context, tenantID uuid.UUID, feature string) (*setting.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[settingKey{tenantID, feature}]
	if !ok {
		return nil, persistence.ErrFlagNotFound
	}
	return flag, nil
}

func (r *memorySettingRepo) UpsertFlag(_ context.Context, flag *setting.FeatureFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[settingKey{flag.TenantID(), flag.Feature()}] = flag
	return nil
}

func (r *memorySettingRepo) GetSetting(_ context.Context, tenantID uuid.UUID, key string) (*setting.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[settingKey{tenantID, key}]
	if !ok {
		return nil, persistence.ErrSettingNotFound
	}
	return s, nil
}

func (r *memorySettingRepo) UpsertSetting(_ context.Context, s *setting.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settingKey{s.TenantID(), s.Key()}] = s
	return nil
}

func (r *memorySettingRepo) DeleteSetting(_ context.Context, tenantID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, settingKey{tenantID, key})
	return nil
}

type memoryBotRepo struct {
	mu   sync.Mutex
	bots map[uuid.UUID]*bot.Bot
}

func newMemoryBotRepo() *memoryBotRepo {
	return &memoryBotRepo{bots: map[uuid.UUID]*bot.Bot{}}
}

func (r *memoryBotRepo) GetByID(_ context.Context, id uuid.UUID) (*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return nil, persistence.ErrBotNotFound
	}
	return b, nil
}

func (r *memoryBotRepo) GetByWebhookToken(_ context.Context, token string) (*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bots {
		if b.WebhookToken() == token {
			return b, nil
		}
	}
	return nil, persistence.ErrBotNotFound
}

func (r *memoryBotRepo) GetByBotID(_ context.Context, botID int64) (*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bots {
		if b.BotID() == botID {
			return b, nil
		}
	}
	return nil, persistence.ErrBotNotFound
}

func (r *memoryBotRepo) GetPrimary(_ context.Context) (*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bots {
		if b.IsPrimary() {
			return b, nil
		}
	}
	return nil, persistence.ErrBotNotFound
}

func (r *memoryBotRepo) List(_ context.Context) ([]*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*bot.Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	return out, nil
}

func (r *memoryBotRepo) ListActive(_ context.Context) ([]*bot.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bot.Bot
	for _, b := range r.bots {
		if b.IsActive() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryBotRepo) Create(_ context.Context, b *bot.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[b.ID()] = b
	return nil
}

func (r *memoryBotRepo) Update(_ context.Context, b *bot.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[b.ID()]; !ok {
		return persistence.ErrBotNotFound
	}
	r.bots[b.ID()] = b
	return nil
}

func (r *memoryBotRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bots, id)
	return nil
}
