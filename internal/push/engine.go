// Package push — рендер дельт для одного поллинга считывателя.
// Читает сущности с пометкой для слота устройства, превращает их в команды
// протокола и снимает пометку сразу после рендера (at-most-once: подтверждения
// доставки прошивка не даёт, потерянный пакет доедет при следующей правке).
package push

import (
	"context"
	"time"

	"gorm.io/gorm"

	"turnstile/internal/logs"
	"turnstile/internal/models"
	"turnstile/internal/proto"
	"turnstile/internal/schedule"
	"turnstile/internal/tenantcfg"
)

// Мягкая блокировка вместо удаления: группа "всегда закрыто" и
// минимальная валидность, чтобы реактивация не требовала перезаливки.
var lockedValidity = time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)

// условие "есть хоть одна пометка" — дальше фильтруем по слоту в Go
const pendingCond = "slot_states IS NOT NULL AND slot_states NOT IN ('', '{}', 'null')"

// Render собирает командный пакет для устройства dev арендатора tenant.
// Порядок стабильный: группы расписаний → сотрудники → клиенты → абонементы.
// Пустой пакет — пустая строка (хендлер ответит "OK").
func Render(ctx context.Context, tdb *gorm.DB, dev *models.Device, tenant *models.Tenant, flags tenantcfg.SyncFlags) (string, error) {
	b := &proto.Batch{}
	slot := dev.Slot

	if err := renderGroups(ctx, tdb, b, slot, flags); err != nil {
		return "", err
	}
	if err := renderEmployees(ctx, tdb, b, slot, tenant, flags); err != nil {
		return "", err
	}
	if err := renderMembers(ctx, tdb, b, slot, tenant, flags); err != nil {
		return "", err
	}
	if err := renderLines(ctx, tdb, b, slot, dev, tenant, flags); err != nil {
		return "", err
	}

	if flags.AttLogPull {
		now := time.Now()
		b.QueryAttLog(now.Add(-24*time.Hour), now)
	}
	return b.String(), nil
}

func renderGroups(ctx context.Context, tdb *gorm.DB, b *proto.Batch, slot int, flags tenantcfg.SyncFlags) error {
	var groups []models.ScheduleGroup
	q := tdb.WithContext(ctx).Unscoped().Order("id asc")
	if !flags.CoarseGroupSync {
		q = q.Where(pendingCond)
	}
	if err := q.Find(&groups).Error; err != nil {
		return err
	}
	for i := range groups {
		g := &groups[i]
		pending := g.SlotStates.Pending(slot)
		if pending == models.SyncClean && !flags.CoarseGroupSync {
			continue
		}
		// у групп нет отдельной команды удаления: state=2 тоже
		// перезаливает определение (Translate для удалённой группы
		// отдаёт её текущие окна, CRUD перевешивает пользователей сам)
		ref := schedule.TZRef(g.ID)
		b.TimeZone(ref, schedule.Translate(g))
		b.AccGroup(g.ID, ref)
		if pending != models.SyncClean {
			if err := clearSlot(ctx, tdb, g, &g.SlotStates, slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderEmployees(ctx context.Context, tdb *gorm.DB, b *proto.Batch, slot int, tenant *models.Tenant, flags tenantcfg.SyncFlags) error {
	var rows []models.Employee
	if err := tdb.WithContext(ctx).Unscoped().Where(pendingCond).Order("id asc").Find(&rows).Error; err != nil {
		return err
	}
	for i := range rows {
		e := &rows[i]
		st := e.SlotStates.Pending(slot)
		if st == models.SyncClean {
			continue
		}
		switch st {
		case models.SyncDelete:
			removeUser(b, e.ID, e.Name, e.Card, e.UpdatedAt, flags)
		default:
			pri := proto.PriUser
			if e.IsAdmin {
				pri = proto.PriAdmin
			}
			// сотрудники бессрочные
			b.User(e.ID, e.Name, pri, e.Card, e.GroupID, schedule.TZRef(e.GroupID), nil)
			b.Photo(e.ID, e.ID, "u", tenant.PhotoUUID)
		}
		if err := clearSlot(ctx, tdb, e, &e.SlotStates, slot); err != nil {
			return err
		}
	}
	return nil
}

func renderMembers(ctx context.Context, tdb *gorm.DB, b *proto.Batch, slot int, tenant *models.Tenant, flags tenantcfg.SyncFlags) error {
	var rows []models.Member
	if err := tdb.WithContext(ctx).Unscoped().Where(pendingCond).Order("id asc").Find(&rows).Error; err != nil {
		return err
	}
	for i := range rows {
		m := &rows[i]
		st := m.SlotStates.Pending(slot)
		if st == models.SyncClean {
			continue
		}
		switch st {
		case models.SyncDelete:
			removeUser(b, m.ID, m.Name, m.Card, m.UpdatedAt, flags)
		default:
			b.User(m.ID, m.Name, proto.PriUser, m.Card, m.GroupID, schedule.TZRef(m.GroupID), m.ExpiresAt)
			b.Photo(m.ID, m.ID, "m", tenant.PhotoUUID)
		}
		if err := clearSlot(ctx, tdb, m, &m.SlotStates, slot); err != nil {
			return err
		}
	}
	return nil
}

func renderLines(ctx context.Context, tdb *gorm.DB, b *proto.Batch, slot int, dev *models.Device, tenant *models.Tenant, flags tenantcfg.SyncFlags) error {
	var rows []models.MembershipLine
	if err := tdb.WithContext(ctx).Unscoped().Where(pendingCond).Order("id asc").Find(&rows).Error; err != nil {
		return err
	}
	now := time.Now()
	for i := range rows {
		l := &rows[i]
		st := l.SlotStates.Pending(slot)
		if st == models.SyncClean {
			continue
		}

		// абонементы, привязанные к филиалу, не едут на чужие считыватели
		if flags.FeeReaderRestriction && l.BranchID != 0 && l.BranchID != dev.BranchID {
			if err := clearSlot(ctx, tdb, l, &l.SlotStates, slot); err != nil {
				return err
			}
			continue
		}

		pin := l.MemberID * proto.MemberPINScale
		switch {
		case st == models.SyncDelete:
			removeUser(b, pin, "", "", l.UpdatedAt, flags)
		case now.After(l.StartsAt) && now.Before(l.EndsAt):
			var m models.Member
			if err := tdb.WithContext(ctx).Unscoped().First(&m, l.MemberID).Error; err != nil {
				logs.Device(dev.SN, dev.Slot).Warnf("membership line %d: member %d missing: %v", l.ID, l.MemberID, err)
				// пометку не снимаем — дорендерим, когда клиент появится
				continue
			}
			gid := l.GroupID
			if gid == 0 {
				gid = m.GroupID
			}
			end := l.EndsAt
			// фото привязывается к масштабированной учётке, но сам файл
			// лежит на сервере под исходным id клиента
			b.User(pin, m.Name, proto.PriUser, m.Card, gid, schedule.TZRef(gid), &end)
			b.Photo(pin, l.MemberID, "m", tenant.PhotoUUID)
		default:
			// не активен (ещё не начался или закончился)
			if flags.DeleteOnExpire {
				b.DeleteUser(pin)
			}
		}
		if err := clearSlot(ctx, tdb, l, &l.SlotStates, slot); err != nil {
			return err
		}
	}
	return nil
}

// removeUser — ветка state=2: пара удаления, либо мягкая блокировка, если
// жёсткое удаление выключено и запись моложе окна хранения.
func removeUser(b *proto.Batch, pin uint, name, card string, updatedAt time.Time, flags tenantcfg.SyncFlags) {
	retention := time.Duration(flags.RetentionDays) * 24 * time.Hour
	if !flags.DeleteOnExpire && time.Since(updatedAt) < retention {
		locked := lockedValidity
		b.User(pin, name, proto.PriUser, card, models.GroupAlwaysClosed, schedule.TZRef(models.GroupAlwaysClosed), &locked)
		return
	}
	b.DeleteUser(pin)
}

// clearSlot снимает пометку только для текущего слота. Запись — CAS по
// сериализованному значению колонки: если параллельный поллинг другого
// слота или свежая пометка CRUD успели перезаписать карту, строка
// перечитывается и снятие повторяется поверх актуального состояния.
// UpdateColumn — чтобы не трогать updated_at (он же прокси возраста
// для окна хранения).
func clearSlot(ctx context.Context, tdb *gorm.DB, row any, states *models.SlotStates, slot int) error {
	for attempt := 0; attempt < 4; attempt++ {
		prev, err := states.Value()
		if err != nil {
			return err
		}
		next := states.Clear(slot)
		res := tdb.WithContext(ctx).Unscoped().Model(row).
			Where("slot_states = ?", prev).
			UpdateColumn("slot_states", next)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			*states = next
			return nil
		}
		if err := tdb.WithContext(ctx).Unscoped().First(row).Error; err != nil {
			return err
		}
	}
	// не смогли снять: пометка останется и уедет повторно при следующем
	// поллинге, это дешевле, чем потерять чужую
	return nil
}
