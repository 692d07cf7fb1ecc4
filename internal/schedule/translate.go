package schedule

import (
	"encoding/json"
	"strings"

	"turnstile/internal/logs"
	"turnstile/internal/models"
)

// Window — границы дня в 4-значном формате прошивки ("09:30" → "0930").
type Window struct {
	Start string
	End   string
}

// Token — 8-значный токен окна ("09302100").
func (w Window) Token() string { return w.Start + w.End }

// Дефолтные окна.
var (
	windowOpen    = Window{Start: "0000", End: "2359"} // открыто весь день
	windowBlocked = Window{Start: "0000", End: "0001"} // вырожденная минута, фактически закрыто
)

// dayPair — элемент JSON-массива ScheduleGroup.Days.
type dayPair struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Translate разворачивает группу расписания в семь окон (воскресенье первым).
// Приоритет правил:
//  1. группа 2 — всегда закрыто;
//  2. HasDays=false — одна пара на все дни;
//  3. HasDays=true — своя пара на каждый день;
//     группа 1 и пустые значения падают в "открыто весь день".
func Translate(g *models.ScheduleGroup) [7]Window {
	var days [7]Window

	if g.ID == models.GroupAlwaysClosed {
		for i := range days {
			days[i] = windowBlocked
		}
		return days
	}

	if g.ID > models.GroupAlwaysClosed && !g.HasDays {
		w := pair(g.Start, g.End)
		for i := range days {
			days[i] = w
		}
		return days
	}

	if g.ID > models.GroupAlwaysClosed && g.HasDays {
		var stored []dayPair
		if err := json.Unmarshal(g.Days, &stored); err != nil {
			// битый JSON не должен распахивать дверь на весь день:
			// откатываемся на общую пару группы
			logs.Logger.Warnf("schedule group %d: bad days json: %v", g.ID, err)
			w := pair(g.Start, g.End)
			for i := range days {
				days[i] = w
			}
			return days
		}
		for i := range days {
			if i < len(stored) {
				days[i] = pair(stored[i].Start, stored[i].End)
			} else {
				days[i] = windowOpen
			}
		}
		return days
	}

	// группа 1 (всегда открыто) и всё прочее
	for i := range days {
		days[i] = windowOpen
	}
	return days
}

// TZRef — ссылка на тайм-зону устройства по id группы:
// зарезервированные 1 и 2 остаются 1 и 2, остальные — как есть.
func TZRef(groupID uint) uint {
	switch groupID {
	case models.GroupAlwaysOpen:
		return 1
	case models.GroupAlwaysClosed:
		return 2
	default:
		return groupID
	}
}

// pair переводит "HH:MM"/"HH:MM" в окно; пустые или кривые значения —
// открыто весь день.
func pair(start, end string) Window {
	s := clock(start)
	e := clock(end)
	if s == "" || e == "" {
		return windowOpen
	}
	return Window{Start: s, End: e}
}

func clock(v string) string {
	v = strings.ReplaceAll(strings.TrimSpace(v), ":", "")
	if len(v) != 4 {
		return ""
	}
	return v
}
