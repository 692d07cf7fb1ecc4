// Package attendance — приём пачек отметок (punch) от считывателей.
// Тело POST: строки "\t"-кортежей, минимум (id, timestamp). Пишем в два
// места: вечный журнал и короткоживущую ленту для живого экрана.
package attendance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"turnstile/internal/logs"
	"turnstile/internal/models"
	"turnstile/internal/proto"
)

// Временные метки прошивка шлёт наивные, без зоны.
const timeLayout = "2006-01-02 15:04:05"

// Лента живёт примерно сутки; чистим её на каждой вставке вместо
// отдельного планировщика.
const recentTTL = 24 * time.Hour

// Ingest разбирает пачку и возвращает число обработанных непустых строк.
// Кривая строка (меньше двух полей, нечисловой id, нечитаемое время)
// пропускается и пачку не валит.
func Ingest(ctx context.Context, tdb *gorm.DB, dev *models.Device, body string) (int, error) {
	count := 0
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		count++

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			logs.Logger.Warnf("attlog sn=%s: malformed line %q", dev.SN, line)
			continue
		}
		rawID, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || rawID <= 0 {
			logs.Logger.Warnf("attlog sn=%s: bad pin %q", dev.SN, fields[0])
			continue
		}
		punchedAt, err := time.Parse(timeLayout, strings.TrimSpace(fields[1]))
		if err != nil {
			logs.Logger.Warnf("attlog sn=%s: bad timestamp %q", dev.SN, fields[1])
			continue
		}

		// разделение по величине: масштабированные PIN — клиенты,
		// маленькие — сотрудники; целочисленное деление обрезает
		// некратные значения как есть
		var memberID, employeeID uint
		if rawID >= proto.MemberPINScale {
			memberID = uint(rawID / proto.MemberPINScale)
		} else {
			employeeID = uint(rawID)
		}

		if err := store(ctx, tdb, dev, memberID, employeeID, punchedAt); err != nil {
			logs.Logger.Errorf("attlog sn=%s: store pin=%d: %v", dev.SN, rawID, err)
		}
	}
	return count, nil
}

// store — дедупликация в пределах календарной минуты (повторные чтения
// карты считаем одним визитом), TTL-чистка ленты и вставка в обе таблицы.
func store(ctx context.Context, tdb *gorm.DB, dev *models.Device, memberID, employeeID uint, punchedAt time.Time) error {
	minute := punchedAt.Truncate(time.Minute)
	next := minute.Add(time.Minute)

	dup := tdb.WithContext(ctx).
		Where("member_id = ? AND employee_id = ?", memberID, employeeID).
		Where("punched_at >= ? AND punched_at < ?", minute, next)
	if err := dup.Delete(&models.VisitLog{}).Error; err != nil {
		return err
	}
	dup = tdb.WithContext(ctx).
		Where("member_id = ? AND employee_id = ?", memberID, employeeID).
		Where("punched_at >= ? AND punched_at < ?", minute, next)
	if err := dup.Delete(&models.RecentVisit{}).Error; err != nil {
		return err
	}

	// попутная чистка ленты
	if err := tdb.WithContext(ctx).
		Where("punched_at < ?", time.Now().Add(-recentTTL)).
		Delete(&models.RecentVisit{}).Error; err != nil {
		return err
	}

	row := models.VisitRow{
		MemberID:   memberID,
		EmployeeID: employeeID,
		BranchID:   dev.BranchID,
		Slot:       dev.Slot,
		PunchedAt:  punchedAt,
	}
	if err := tdb.WithContext(ctx).Create(&models.VisitLog{VisitRow: row}).Error; err != nil {
		return err
	}
	return tdb.WithContext(ctx).Create(&models.RecentVisit{VisitRow: row}).Error
}
