// Package tenants — кэш подключений к БД арендаторов.
package tenants

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"turnstile/internal/db"
	"turnstile/internal/logs"
	"turnstile/internal/models"
)

// Пул на арендатора маленький: считывателей максимум десять, поллинг редкий.
const maxOpenConns = 5

// Pool лениво открывает и кэширует по одному gorm-хендлу на арендатора.
// Эвикции нет — хендл живёт до рестарта процесса. Безопасен для
// конкурентных запросов разных устройств.
type Pool struct {
	mu    sync.Mutex
	conns map[uint]*gorm.DB
}

func NewPool() *Pool {
	return &Pool{conns: make(map[uint]*gorm.DB)}
}

// Get — хендл БД арендатора; первое обращение открывает соединение,
// ограничивает пул и прогоняет миграцию моделей арендатора.
func (p *Pool) Get(ctx context.Context, t *models.Tenant) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.conns[t.ID]; ok {
		return d.WithContext(ctx), nil
	}

	d, err := db.Open(t.DBDriver, t.DSN)
	if err != nil {
		return nil, fmt.Errorf("tenant %d db open: %w", t.ID, err)
	}
	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("tenant %d db handle: %w", t.ID, err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	if err := d.AutoMigrate(models.TenantModels()...); err != nil {
		return nil, fmt.Errorf("tenant %d db migrate: %w", t.ID, err)
	}

	logs.Logger.Infof("tenant %d: db pool opened (%s)", t.ID, t.DBDriver)
	p.conns[t.ID] = d
	return d.WithContext(ctx), nil
}
