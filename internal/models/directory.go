package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Статусы устройства в глобальном справочнике.
const (
	DeviceStatusUnknown = "unknown"
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Device — запись глобального (кросс-арендаторского) справочника считывателей.
// SN приходит от прошивки в каждом запросе; Slot — стабильный номер 1..10
// внутри арендатора, назначается при регистрации и не переиспользуется.
type Device struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SN       string `gorm:"uniqueIndex;size:64;not null" json:"sn"`
	TenantID uint   `gorm:"index;not null" json:"tenant_id"`
	Slot     int    `gorm:"not null" json:"slot"`
	BranchID uint   `gorm:"index" json:"branch_id"`
	Name     string `gorm:"size:255" json:"name"`
	Status   string `gorm:"size:64" json:"status"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Tenant — арендатор (один зал/клиент) с координатами его собственной БД.
// PhotoUUID — неймспейс для путей биофото на файловом сервере.
type Tenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	DBDriver  string `gorm:"size:32;not null" json:"db_driver"` // mysql | postgres | sqlite
	DSN       string `gorm:"size:512;not null" json:"-"`
	PhotoUUID string `gorm:"size:64;not null" json:"photo_uuid"`
	Country   string `gorm:"size:8" json:"country"`

	Settings datatypes.JSON `json:"settings,omitempty"`
}
