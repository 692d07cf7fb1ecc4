// Package iclock — HTTP-поверхность, которую поллят считыватели.
// Прошивка не умеет обрабатывать ошибки: любой сбой на этих ручках
// деградирует в "OK" (не в HTTP-ошибку), иначе устройство уходит в
// retry-шторм. Настоящая причина остаётся в серверном логе.
package iclock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"turnstile/internal/attendance"
	"turnstile/internal/directory"
	"turnstile/internal/logs"
	"turnstile/internal/models"
	"turnstile/internal/push"
	"turnstile/internal/tenantcfg"
)

// Ограничение на тело POST от устройства.
const maxBodyBytes = 4 << 20

type Handler struct {
	dir  *directory.Store
	pool TenantPool
}

// TenantPool — то, что хендлерам нужно от кэша подключений.
type TenantPool interface {
	Get(ctx context.Context, t *models.Tenant) (*gorm.DB, error)
}

func New(dir *directory.Store, pool TenantPool) *Handler {
	return &Handler{dir: dir, pool: pool}
}

func ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// resolve — SN → (device, tenant, БД арендатора, флаги). Любая проблема —
// nil и лог; ответ наверху всё равно "OK".
func (h *Handler) resolve(r *http.Request) (*models.Device, *models.Tenant, *gorm.DB, tenantcfg.SyncFlags) {
	sn := r.URL.Query().Get("SN")
	dev, tenant, err := h.dir.ResolveDevice(r.Context(), sn)
	if err != nil {
		logs.Logger.Warnf("iclock: unknown device sn=%q: %v", sn, err)
		return nil, nil, nil, tenantcfg.SyncFlags{}
	}
	tdb, err := h.pool.Get(r.Context(), tenant)
	if err != nil {
		logs.Logger.Errorf("iclock: tenant %d db: %v", tenant.ID, err)
		return nil, nil, nil, tenantcfg.SyncFlags{}
	}
	_ = h.dir.MarkSeen(r.Context(), sn)

	// флаги читаем на каждую сессию заново: их меняют между поллингами
	flags := tenantcfg.Load(tdb).Flags(r.Context())
	return dev, tenant, tdb, flags
}

// GET /iclock/cdata?SN=..&options=all&devicetype=..
// Handshake: отдаём блок опций "KEY=VALUE" из параметров арендатора.
// Вариант "acc" и неизвестные SN всегда получают "OK".
func (h *Handler) Handshake(w http.ResponseWriter, r *http.Request) {
	dev, _, tdb, flags := h.resolve(r)
	if dev == nil {
		ok(w)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("devicetype"), "acc") || !flags.FetchOptions {
		ok(w)
		return
	}

	params := tenantcfg.Load(tdb)
	var sb strings.Builder
	for _, key := range tenantcfg.OptionKeys {
		// per-key: не задано — строку опускаем, никаких жёстких дефолтов
		if v := params.Get(r.Context(), tenantcfg.SectionOptions, key); v != "" {
			fmt.Fprintf(&sb, "%s=%s\n", key, v)
		}
	}
	if sb.Len() == 0 {
		ok(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

// GET /iclock/getrequest?SN=..
// Командный пакет: дельты для слота устройства. Пусто или сбой — "OK".
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	dev, tenant, tdb, flags := h.resolve(r)
	if dev == nil {
		ok(w)
		return
	}

	body, err := push.Render(r.Context(), tdb, dev, tenant, flags)
	if err != nil {
		logs.Device(dev.SN, dev.Slot).Errorf("iclock: render failed: %v", err)
		ok(w)
		return
	}
	if body == "" {
		ok(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

// POST /iclock/cdata?SN=..&table=ATTLOG|OPERLOG|...
// Приём журналов. ATTLOG — в два стола посещений, ответ "OK:<count>";
// OPERLOG принимаем и выбрасываем ("OK:1"); прочее — "OK".
func (h *Handler) PostData(w http.ResponseWriter, r *http.Request) {
	dev, _, tdb, _ := h.resolve(r)
	if dev == nil {
		ok(w)
		return
	}

	table := strings.ToUpper(r.URL.Query().Get("table"))
	switch table {
	case "ATTLOG":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logs.Logger.Errorf("iclock: attlog sn=%s read: %v", dev.SN, err)
			ok(w)
			return
		}
		count, err := attendance.Ingest(r.Context(), tdb, dev, string(body))
		if err != nil {
			logs.Logger.Errorf("iclock: attlog sn=%s ingest: %v", dev.SN, err)
			ok(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "OK:%d", count)
	case "OPERLOG":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "OK:1")
	default:
		ok(w)
	}
}
