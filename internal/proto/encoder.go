// Package proto — строчный командный протокол push-считывателей.
// Каждая команда: "C:<seq>:DATA <UPDATE|DELETE|QUERY> <ENTITY> k=v\tk=v\n".
// Кодировщик чистый: никакой БД, только буфер и счётчик.
package proto

import (
	"fmt"
	"strings"
	"time"

	"turnstile/internal/schedule"
)

// Уровни привилегий USERINFO.
const (
	PriUser  = 0
	PriAdmin = 14
)

// Сентинелы валидности: прошивка требует обе границы всегда.
const (
	validFrom    = "20000101"
	validForever = "20991231"
)

// MemberPINScale — множитель PIN для строк абонементов; ID сотрудников
// маленькие и не масштабируются, поэтому порог 10000 разделяет их
// на стороне декодера.
const MemberPINScale = 10000

const maxNameLen = 20

// Batch накапливает команды одного ответа на поллинг.
type Batch struct {
	sb  strings.Builder
	seq int
}

func (b *Batch) next() int {
	b.seq++
	return b.seq
}

// Len — число команд в пакете.
func (b *Batch) Len() int { return b.seq }

// String — тело ответа; пустой пакет — пустая строка.
func (b *Batch) String() string { return b.sb.String() }

func (b *Batch) line(verb, entity string, fields ...string) {
	fmt.Fprintf(&b.sb, "C:%d:DATA %s %s %s\n", b.next(), verb, entity, strings.Join(fields, "\t"))
}

// TimeZone — определение тайм-зоны: семь 8-значных окон, воскресенье первым.
func (b *Batch) TimeZone(ref uint, days [7]schedule.Window) {
	b.line("UPDATE", "AccTimeZone",
		fmt.Sprintf("TZid=%d", ref),
		"SunTime="+days[0].Token(),
		"MonTime="+days[1].Token(),
		"TueTime="+days[2].Token(),
		"WedTime="+days[3].Token(),
		"ThuTime="+days[4].Token(),
		"FriTime="+days[5].Token(),
		"SatTime="+days[6].Token(),
	)
}

// AccGroup — группа доступа, ссылающаяся на тайм-зону. Verify/Holiday —
// базовые, устройство их не переопределяет.
func (b *Batch) AccGroup(groupID, tzRef uint) {
	b.line("UPDATE", "AccGroup",
		fmt.Sprintf("ID=%d", groupID),
		"Verify=0",
		"ValidHoliday=0",
		fmt.Sprintf("TZ=%d", tzRef),
	)
}

// User — upsert учётки. expires=nil — бессрочно (сентинел).
func (b *Batch) User(pin uint, name string, pri int, card string, groupID, tzRef uint, expires *time.Time) {
	end := validForever
	if expires != nil {
		end = expires.Format("20060102")
	}
	b.line("UPDATE", "USERINFO",
		fmt.Sprintf("PIN=%d", pin),
		"Name="+truncName(name),
		fmt.Sprintf("Pri=%d", pri),
		"Card="+card,
		fmt.Sprintf("Grp=%d", groupID),
		fmt.Sprintf("TZ=%d", tzRef),
		"StartDateTime="+validFrom,
		"EndDateTime="+end,
	)
}

// Photo — ссылка на биофото; kind: "m" для клиентских PIN, "u" для
// сотрудников. PIN и имя файла различаются для абонементных учёток:
// устройство знает масштабированный PIN, файл на сервере лежит под
// исходным id клиента. Сам файл кладёт CRUD-слой, здесь только путь.
func (b *Batch) Photo(pin, fileID uint, kind, tenantUUID string) {
	b.line("UPDATE", "BIOPHOTO",
		fmt.Sprintf("PIN=%d", pin),
		fmt.Sprintf("URL=photos%s/%s/%d.jpg", kind, tenantUUID, fileID),
	)
}

// DeleteUser — пара удаления: сначала фото, потом учётка.
func (b *Batch) DeleteUser(pin uint) {
	b.line("DELETE", "BIOPHOTO", fmt.Sprintf("PIN=%d", pin))
	b.line("DELETE", "USERINFO", fmt.Sprintf("PIN=%d", pin))
}

// QueryAttLog — запрос журнала за интервал (ручная дотяжка пропусков).
func (b *Batch) QueryAttLog(from, to time.Time) {
	const layout = "2006-01-02 15:04:05"
	b.line("QUERY", "ATTLOG",
		"StartTime="+from.Format(layout),
		"EndTime="+to.Format(layout),
	)
}

func truncName(s string) string {
	r := []rune(s)
	if len(r) > maxNameLen {
		r = r[:maxNameLen]
	}
	return string(r)
}
