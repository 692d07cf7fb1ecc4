package push

import (
	"context"

	"gorm.io/gorm"

	"turnstile/internal/models"
)

// MarkAllForSlot помечает все живые сущности арендатора на upsert для слота:
// первичная заливка нового считывателя. Soft-deleted записи не трогаем —
// на устройстве их ещё нет, удалять нечего.
func MarkAllForSlot(ctx context.Context, tdb *gorm.DB, slot int) error {
	var groups []models.ScheduleGroup
	if err := tdb.WithContext(ctx).Find(&groups).Error; err != nil {
		return err
	}
	for i := range groups {
		g := &groups[i]
		g.SlotStates = g.SlotStates.Mark(slot, models.SyncUpsert)
		if err := saveStates(ctx, tdb, g, g.SlotStates); err != nil {
			return err
		}
	}

	var employees []models.Employee
	if err := tdb.WithContext(ctx).Find(&employees).Error; err != nil {
		return err
	}
	for i := range employees {
		e := &employees[i]
		e.SlotStates = e.SlotStates.Mark(slot, models.SyncUpsert)
		if err := saveStates(ctx, tdb, e, e.SlotStates); err != nil {
			return err
		}
	}

	var members []models.Member
	if err := tdb.WithContext(ctx).Find(&members).Error; err != nil {
		return err
	}
	for i := range members {
		m := &members[i]
		m.SlotStates = m.SlotStates.Mark(slot, models.SyncUpsert)
		if err := saveStates(ctx, tdb, m, m.SlotStates); err != nil {
			return err
		}
	}

	var lines []models.MembershipLine
	if err := tdb.WithContext(ctx).Find(&lines).Error; err != nil {
		return err
	}
	for i := range lines {
		l := &lines[i]
		l.SlotStates = l.SlotStates.Mark(slot, models.SyncUpsert)
		if err := saveStates(ctx, tdb, l, l.SlotStates); err != nil {
			return err
		}
	}
	return nil
}

func saveStates(ctx context.Context, tdb *gorm.DB, row any, states models.SlotStates) error {
	return tdb.WithContext(ctx).Model(row).UpdateColumn("slot_states", states).Error
}
