package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SyncState — состояние синхронизации сущности для одного слота считывателя.
type SyncState int

const (
	SyncClean  SyncState = 0 // нечего отправлять
	SyncUpsert SyncState = 1 // отправить UPDATE
	SyncDelete SyncState = 2 // отправить DELETE
)

// MaxSlots — максимум считывателей на арендатора.
const MaxSlots = 10

// SlotStates — карта слот → состояние. Хранится в БД как JSON-текст,
// пустая карта сериализуется в "{}". Динамическая вместо десяти фиксированных
// колонок: слоты без изменений просто отсутствуют в карте.
type SlotStates map[int]SyncState

func (s SlotStates) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SlotStates) Scan(src any) error {
	if src == nil {
		*s = SlotStates{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("slot states: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*s = SlotStates{}
		return nil
	}
	m := SlotStates{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

// Pending — состояние для слота (SyncClean если слот не помечен).
func (s SlotStates) Pending(slot int) SyncState {
	if s == nil {
		return SyncClean
	}
	return s[slot]
}

// Mark помечает слот состоянием st. Возвращает обновлённую карту
// (исходная может быть nil после Scan пустой колонки).
func (s SlotStates) Mark(slot int, st SyncState) SlotStates {
	if s == nil {
		s = SlotStates{}
	}
	if st == SyncClean {
		delete(s, slot)
		return s
	}
	s[slot] = st
	return s
}

// Clear снимает пометку только с одного слота; остальные не трогаем.
func (s SlotStates) Clear(slot int) SlotStates {
	if s == nil {
		return SlotStates{}
	}
	delete(s, slot)
	return s
}
