package iclock

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"turnstile/internal/directory"
	"turnstile/internal/logs"
	"turnstile/internal/models"
	"turnstile/internal/tenants"
)

func init() {
	logs.Init(logs.Options{Level: "error"})
}

type fixture struct {
	router *mux.Router
	dir    *directory.Store
	tenant *models.Tenant
	dev    *models.Device
	tdb    *gorm.DB // хендл теста к БД арендатора (держит shared cache живым)
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dirDSN := fmt.Sprintf("file:%s_dir?mode=memory&cache=shared", t.Name())
	ddb, err := gorm.Open(sqlite.Open(dirDSN), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, ddb.AutoMigrate(&models.Tenant{}, &models.Device{}))
	dir := directory.NewStore(ddb)

	tenantDSN := fmt.Sprintf("file:%s_t1?mode=memory&cache=shared", t.Name())
	tdb, err := gorm.Open(sqlite.Open(tenantDSN), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, tdb.AutoMigrate(models.TenantModels()...))

	tenant, err := dir.CreateTenant(context.Background(), directory.TenantInput{
		Name: "gym", DBDriver: "sqlite", DSN: tenantDSN,
	})
	require.NoError(t, err)
	dev, err := dir.RegisterDevice(context.Background(), directory.RegisterDeviceInput{
		SN: "SN100", TenantID: tenant.ID, BranchID: 1,
	})
	require.NoError(t, err)

	r := mux.NewRouter()
	RegisterRoutes(r, New(dir, tenants.NewPool()))
	return &fixture{router: r, dir: dir, tenant: tenant, dev: dev, tdb: tdb}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestUnknownDeviceGetsOK(t *testing.T) {
	f := setup(t)

	// неизвестный SN никогда не должен увидеть ошибку — иначе retry-шторм
	for _, path := range []string{
		"/iclock/getrequest?SN=GHOST",
		"/iclock/cdata?SN=GHOST&options=all",
	} {
		w := f.get(path)
		require.Equal(t, http.StatusOK, w.Code, path)
		require.Equal(t, "OK", w.Body.String(), path)
	}
	w := f.post("/iclock/cdata?SN=GHOST&table=ATTLOG", "1\t2024-01-01 10:00:00\n")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestGetRequestEndToEnd(t *testing.T) {
	f := setup(t)
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.tdb.Create(&models.Member{
		ID: 42, Name: "Ivan", Card: "AB12", ExpiresAt: &exp, GroupID: 3,
		SlotStates: models.SlotStates{f.dev.Slot: models.SyncUpsert},
	}).Error)

	w := f.get("/iclock/getrequest?SN=SN100")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "USERINFO")
	require.Contains(t, body, "PIN=42")
	require.Contains(t, body, "Card=AB12")
	require.Contains(t, body, "EndDateTime=20250101")
	// BIOPHOTO после USERINFO
	require.Greater(t, strings.Index(body, "BIOPHOTO"), strings.Index(body, "USERINFO"))
	require.Contains(t, body, fmt.Sprintf("URL=photosm/%s/42.jpg", f.tenant.PhotoUUID))

	// пометка снята — повторный поллинг пуст
	var m models.Member
	require.NoError(t, f.tdb.First(&m, 42).Error)
	require.Equal(t, models.SyncClean, m.SlotStates.Pending(f.dev.Slot))
	w = f.get("/iclock/getrequest?SN=SN100")
	require.Equal(t, "OK", w.Body.String())
}

func TestPostAttLog(t *testing.T) {
	f := setup(t)

	w := f.post("/iclock/cdata?SN=SN100&table=ATTLOG", "420000\t2024-03-01 08:00:00\textra\n")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK:1", w.Body.String())

	var logRow models.VisitLog
	require.NoError(t, f.tdb.First(&logRow).Error)
	require.Equal(t, uint(42), logRow.MemberID)
	require.Equal(t, "2024-03-01 08:00:00", logRow.PunchedAt.Format("2006-01-02 15:04:05"))

	var n int64
	require.NoError(t, f.tdb.Model(&models.RecentVisit{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestPostOperLogAccepted(t *testing.T) {
	f := setup(t)
	w := f.post("/iclock/cdata?SN=SN100&table=OPERLOG", "whatever\n")
	require.Equal(t, "OK:1", w.Body.String())

	w = f.post("/iclock/cdata?SN=SN100&table=BIODATA", "x\n")
	require.Equal(t, "OK", w.Body.String())
}

func TestHandshakeAccVariantGetsOK(t *testing.T) {
	f := setup(t)
	w := f.get("/iclock/cdata?SN=SN100&options=all&devicetype=acc")
	require.Equal(t, "OK", w.Body.String())
}

func TestHandshakeOptionsBlock(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.tdb.Create(&models.Param{Section: "options", Name: "TransInterval", Value: "1"}).Error)
	require.NoError(t, f.tdb.Create(&models.Param{Section: "options", Name: "Encrypt", Value: "0"}).Error)

	w := f.get("/iclock/cdata?SN=SN100&options=all")
	body := w.Body.String()
	require.Contains(t, body, "TransInterval=1\n")
	require.Contains(t, body, "Encrypt=0\n")
	// незаданные ключи опускаются, не подставляются
	require.NotContains(t, body, "Stamp=")
}

func TestHandshakeNoOptionsConfigured(t *testing.T) {
	f := setup(t)
	w := f.get("/iclock/cdata?SN=SN100&options=all")
	require.Equal(t, "OK", w.Body.String())
}

func TestContactMarksSeen(t *testing.T) {
	f := setup(t)
	_ = f.get("/iclock/getrequest?SN=SN100")

	dev, _, err := f.dir.ResolveDevice(context.Background(), "SN100")
	require.NoError(t, err)
	require.NotNil(t, dev.LastSeenAt)
	require.Equal(t, models.DeviceStatusOnline, dev.Status)
}
