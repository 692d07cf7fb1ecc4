package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Модели БД арендатора. CRUD-слой (дашборд) создаёт и правит эти записи и
// обязан помечать SlotStates; движок синхронизации их только читает,
// рендерит и снимает пометки.

// Member — клиент зала. PIN на устройстве = ID (без масштабирования).
type Member struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string     `gorm:"size:255;not null" json:"name"`
	Card      string     `gorm:"size:64" json:"card"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil — без срока
	GroupID   uint       `gorm:"index" json:"group_id"`

	SlotStates SlotStates `gorm:"type:text" json:"slot_states"`
}

// Employee — сотрудник; не истекает, админ получает повышенный Pri.
type Employee struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name    string `gorm:"size:255;not null" json:"name"`
	Card    string `gorm:"size:64" json:"card"`
	IsAdmin bool   `json:"is_admin"`
	GroupID uint   `gorm:"index" json:"group_id"`

	SlotStates SlotStates `gorm:"type:text" json:"slot_states"`
}

// Зарезервированные системные группы расписаний.
const (
	GroupAlwaysOpen   uint = 1
	GroupAlwaysClosed uint = 2
)

// ScheduleGroup — недельный шаблон времени доступа. Либо одна пара
// start/end на все дни (HasDays=false), либо семь пар в Days (JSON-массив
// из 7 объектов {"start":"09:30","end":"21:00"}, воскресенье первым).
type ScheduleGroup struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name    string `gorm:"size:255;not null" json:"name"`
	HasDays bool   `json:"has_days"`
	Start   string `gorm:"size:8" json:"start"` // "09:30"
	End     string `gorm:"size:8" json:"end"`

	Days datatypes.JSON `json:"days,omitempty"`

	SlotStates SlotStates `gorm:"type:text" json:"slot_states"`
}

// MembershipLine — строка продажи абонемента; пока StartsAt < now < EndsAt
// действует как временнáя накладка на доступ клиента. PIN на устройстве =
// MemberID*10000, чтобы не пересекаться с маленькими ID сотрудников.
type MembershipLine struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	MemberID uint      `gorm:"index;not null" json:"member_id"`
	BranchID uint      `gorm:"index" json:"branch_id"`
	GroupID  uint      `gorm:"index" json:"group_id"`
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`

	SlotStates SlotStates `gorm:"type:text" json:"slot_states"`
}

// Param — настройка арендатора: (section, name) → value.
type Param struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Section string `gorm:"size:64;not null;uniqueIndex:param_key" json:"section"`
	Name    string `gorm:"size:64;not null;uniqueIndex:param_key" json:"name"`
	Value   string `gorm:"size:255" json:"value"`
}

// VisitRow — общие поля посещения; ровно одно из MemberID/EmployeeID
// ненулевое.
type VisitRow struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	MemberID   uint `gorm:"index" json:"member_id"`
	EmployeeID uint `gorm:"index" json:"employee_id"`
	BranchID   uint `gorm:"index" json:"branch_id"`
	Slot       int  `json:"slot"`

	PunchedAt time.Time `gorm:"index;not null" json:"punched_at"`
	CreatedAt time.Time `json:"created_at"`
}

// VisitLog — вечный журнал посещений.
type VisitLog struct {
	VisitRow
}

// RecentVisit — короткоживущая лента (~24 часа) для живого экрана;
// подчищается при каждой вставке.
type RecentVisit struct {
	VisitRow
}

// TenantModels — набор для AutoMigrate БД арендатора.
func TenantModels() []any {
	return []any{
		&Member{},
		&Employee{},
		&ScheduleGroup{},
		&MembershipLine{},
		&Param{},
		&VisitLog{},
		&RecentVisit{},
	}
}
