// Package tenantcfg — параметры поведения синхронизации из таблицы
// арендатора (section, name) → value. Читаются на каждый запрос протокола
// заново: настройку могут поменять между поллингами.
package tenantcfg

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"turnstile/internal/models"
)

// Секции и имена параметров.
const (
	SectionSync    = "sync"
	SectionOptions = "options"

	ParamDeleteOnExpire       = "delete_on_expire"       // жёсткое удаление с устройства
	ParamAttLogPull           = "attlog_pull"            // ручная дотяжка ATTLOG запросом
	ParamRetentionDays        = "retention_days"         // окно мягкой блокировки вместо удаления
	ParamCoarseGroupSync      = "coarse_group_sync"      // перезаливать все группы каждый поллинг
	ParamFeeReaderRestriction = "fee_reader_restriction" // абонементы только на считыватели своего филиала
	ParamFetchOptions         = "fetch_options"          // отдавать блок опций на handshake
)

// Дефолты, когда арендатор ничего не переопределил.
const (
	DefaultDeleteOnExpire       = true
	DefaultAttLogPull           = false
	DefaultRetentionDays        = 30
	DefaultCoarseGroupSync      = false
	DefaultFeeReaderRestriction = false
	DefaultFetchOptions         = true
)

// OptionKeys — ключи блока опций прошивки, порядок фиксированный.
// Значения берутся из params per-key; пустое значение — строка опускается.
var OptionKeys = []string{
	"Stamp",
	"OpStamp",
	"ErrorDelay",
	"Delay",
	"TransTimes",
	"TransInterval",
	"TimeZone",
	"Realtime",
	"Encrypt",
}

type Params struct{ db *gorm.DB }

func Load(db *gorm.DB) *Params { return &Params{db: db} }

// Get — сырое значение; пустая строка, если параметр не задан.
func (p *Params) Get(ctx context.Context, section, name string) string {
	var row models.Param
	err := p.db.WithContext(ctx).
		Where(&models.Param{Section: section, Name: name}).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ""
	}
	if err != nil {
		return ""
	}
	return row.Value
}

// Bool — "on"/"off" (а также 1/0, true/false) с дефолтом.
func (p *Params) Bool(ctx context.Context, section, name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(p.Get(ctx, section, name))) {
	case "on", "1", "true", "yes":
		return true
	case "off", "0", "false", "no":
		return false
	default:
		return def
	}
}

// Int — числовой параметр с дефолтом.
func (p *Params) Int(ctx context.Context, section, name string, def int) int {
	v := strings.TrimSpace(p.Get(ctx, section, name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// SyncFlags — флаги одной сессии протокола; держим на время запроса.
type SyncFlags struct {
	DeleteOnExpire       bool
	AttLogPull           bool
	RetentionDays        int
	CoarseGroupSync      bool
	FeeReaderRestriction bool
	FetchOptions         bool
}

func (p *Params) Flags(ctx context.Context) SyncFlags {
	return SyncFlags{
		DeleteOnExpire:       p.Bool(ctx, SectionSync, ParamDeleteOnExpire, DefaultDeleteOnExpire),
		AttLogPull:           p.Bool(ctx, SectionSync, ParamAttLogPull, DefaultAttLogPull),
		RetentionDays:        p.Int(ctx, SectionSync, ParamRetentionDays, DefaultRetentionDays),
		CoarseGroupSync:      p.Bool(ctx, SectionSync, ParamCoarseGroupSync, DefaultCoarseGroupSync),
		FeeReaderRestriction: p.Bool(ctx, SectionSync, ParamFeeReaderRestriction, DefaultFeeReaderRestriction),
		FetchOptions:         p.Bool(ctx, SectionSync, ParamFetchOptions, DefaultFetchOptions),
	}
}
