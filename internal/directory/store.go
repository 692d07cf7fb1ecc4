// Package directory — глобальный справочник: арендаторы и их считыватели.
// Лежит в отдельной (общей) БД; БД арендаторов открываются по координатам
// из записей Tenant.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"turnstile/internal/models"
)

var (
	ErrNotFound  = errors.New("device not found")
	ErrNoTenant  = errors.New("tenant not found")
	ErrSlotsFull = errors.New("no free device slot for tenant")
)

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// ResolveDevice — SN → (устройство, арендатор). Вызывается на каждый
// запрос протокола; неизвестный SN — ErrNotFound, хендлер отвечает "OK".
func (s *Store) ResolveDevice(ctx context.Context, sn string) (*models.Device, *models.Tenant, error) {
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return nil, nil, ErrNotFound
	}
	var d models.Device
	err := s.db.WithContext(ctx).Where(&models.Device{SN: sn}).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	var t models.Tenant
	err = s.db.WithContext(ctx).First(&t, d.TenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNoTenant
	}
	if err != nil {
		return nil, nil, err
	}
	return &d, &t, nil
}

// MarkSeen — отметка контакта устройства (любой запрос прошивки).
func (s *Store) MarkSeen(ctx context.Context, sn string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.Device{}).
		Where("sn = ?", sn).
		Updates(map[string]any{
			"last_seen_at": now,
			"status":       models.DeviceStatusOnline,
		}).Error
}

type TenantInput struct {
	Name     string
	DBDriver string
	DSN      string
	Country  string
}

// CreateTenant — регистрация арендатора. PhotoUUID генерируется здесь и
// дальше неизменен: им неймспейсятся пути биофото.
func (s *Store) CreateTenant(ctx context.Context, in TenantInput) (*models.Tenant, error) {
	t := models.Tenant{
		Name:      strings.TrimSpace(in.Name),
		DBDriver:  in.DBDriver,
		DSN:       in.DSN,
		PhotoUUID: uuid.NewString(),
		Country:   in.Country,
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) TenantByID(ctx context.Context, id uint) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoTenant
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type RegisterDeviceInput struct {
	SN       string
	TenantID uint
	BranchID uint
	Name     string
}

// RegisterDevice — регистрация считывателя. Слот назначается append-only:
// max(slot)+1, без переиспользования освободившихся номеров; больше
// MaxSlots считывателей на арендатора прошивка не умеет.
func (s *Store) RegisterDevice(ctx context.Context, in RegisterDeviceInput) (*models.Device, error) {
	sn := strings.TrimSpace(in.SN)
	if sn == "" {
		return nil, errors.New("sn required")
	}
	if _, err := s.TenantByID(ctx, in.TenantID); err != nil {
		return nil, err
	}

	// уже зарегистрирован — отдаём как есть (SN уникален глобально)
	var existing models.Device
	err := s.db.WithContext(ctx).Where(&models.Device{SN: sn}).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Unscoped: слот снятого с учёта считывателя не переиспользуем
	var maxSlot int
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Device{}).
		Where("tenant_id = ?", in.TenantID).
		Select("COALESCE(MAX(slot), 0)").Scan(&maxSlot).Error; err != nil {
		return nil, err
	}
	slot := maxSlot + 1
	if slot > models.MaxSlots {
		return nil, ErrSlotsFull
	}

	d := models.Device{
		SN:       sn,
		TenantID: in.TenantID,
		BranchID: in.BranchID,
		Slot:     slot,
		Name:     in.Name,
		Status:   models.DeviceStatusUnknown,
	}
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices — список считывателей арендатора (админка).
func (s *Store) ListDevices(ctx context.Context, tenantID uint) ([]models.Device, error) {
	var out []models.Device
	q := s.db.WithContext(ctx).Order("tenant_id asc, slot asc")
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	return out, q.Find(&out).Error
}
