package attendance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"turnstile/internal/logs"
	"turnstile/internal/models"
)

func init() {
	logs.Init(logs.Options{Level: "error"})
}

// In-memory БД на каждый тест, чтобы тесты не пересекались.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.TenantModels()...))
	return db
}

func testDevice() *models.Device {
	return &models.Device{SN: "TEST01", TenantID: 1, Slot: 3, BranchID: 2}
}

func TestIngestMemberPunch(t *testing.T) {
	db := testDB(t)

	count, err := Ingest(context.Background(), db, testDevice(), "420000\t2024-03-01 08:00:00\textra\n")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	var logRow models.VisitLog
	require.NoError(t, db.First(&logRow).Error)
	require.Equal(t, uint(42), logRow.MemberID) // 420000/10000
	require.Equal(t, uint(0), logRow.EmployeeID)
	require.Equal(t, uint(2), logRow.BranchID)
	require.Equal(t, 3, logRow.Slot)
	require.Equal(t, "2024-03-01 08:00:00", logRow.PunchedAt.Format("2006-01-02 15:04:05"))

	var recent models.RecentVisit
	require.NoError(t, db.First(&recent).Error)
	require.Equal(t, uint(42), recent.MemberID)
}

func TestIngestEmployeePunch(t *testing.T) {
	db := testDB(t)

	count, err := Ingest(context.Background(), db, testDevice(), "17\t2024-03-01 09:15:00\n")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	var row models.VisitLog
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, uint(0), row.MemberID)
	require.Equal(t, uint(17), row.EmployeeID) // без масштабирования
}

func TestIngestFractionalPINTruncates(t *testing.T) {
	db := testDB(t)

	// 420007 не кратен 10000: целочисленное деление, без отказа
	_, err := Ingest(context.Background(), db, testDevice(), "420007\t2024-03-01 09:00:00\n")
	require.NoError(t, err)

	var row models.VisitLog
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, uint(42), row.MemberID)
}

func TestIngestMinuteDedup(t *testing.T) {
	db := testDB(t)
	dev := testDevice()

	body := "420000\t2024-03-01 08:00:05\n" +
		"420000\t2024-03-01 08:00:40\n" // та же календарная минута
	count, err := Ingest(context.Background(), db, dev, body)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	var n int64
	require.NoError(t, db.Model(&models.VisitLog{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
	require.NoError(t, db.Model(&models.RecentVisit{}).Count(&n).Error)
	require.Equal(t, int64(1), n)

	// выжила последняя отметка
	var row models.VisitLog
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, 40, row.PunchedAt.Second())
}

func TestIngestDifferentMinutesKept(t *testing.T) {
	db := testDB(t)

	body := "420000\t2024-03-01 08:00:59\n" +
		"420000\t2024-03-01 08:01:01\n"
	_, err := Ingest(context.Background(), db, testDevice(), body)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.VisitLog{}).Count(&n).Error)
	require.Equal(t, int64(2), n)
}

func TestIngestSkipsMalformed(t *testing.T) {
	db := testDB(t)

	body := "bogus-no-tabs\n" +
		"\n" +
		"notanumber\t2024-03-01 08:00:00\n" +
		"17\tgarbage-time\n" +
		"18\t2024-03-01 08:00:00\n"
	count, err := Ingest(context.Background(), db, testDevice(), body)
	require.NoError(t, err)
	// пустая строка не считается, кривые считаются, но пропускаются
	require.Equal(t, 4, count)

	var n int64
	require.NoError(t, db.Model(&models.VisitLog{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestIngestSweepsRecentFeed(t *testing.T) {
	db := testDB(t)

	old := models.RecentVisit{VisitRow: models.VisitRow{
		EmployeeID: 9,
		PunchedAt:  time.Now().Add(-48 * time.Hour),
	}}
	require.NoError(t, db.Create(&old).Error)

	line := fmt.Sprintf("17\t%s\n", time.Now().Format("2006-01-02 15:04:05"))
	_, err := Ingest(context.Background(), db, testDevice(), line)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.RecentVisit{}).Count(&n).Error)
	require.Equal(t, int64(1), n) // старая запись выметена

	// вечный журнал не трогаем
	require.NoError(t, db.Model(&models.VisitLog{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}
