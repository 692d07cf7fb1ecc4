package tenantcfg

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"turnstile/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Param{}))
	return db
}

func TestGetMissingIsEmpty(t *testing.T) {
	p := Load(testDB(t))
	require.Equal(t, "", p.Get(context.Background(), SectionSync, "nope"))
}

func TestFlagsDefaults(t *testing.T) {
	f := Load(testDB(t)).Flags(context.Background())
	require.True(t, f.DeleteOnExpire)
	require.False(t, f.AttLogPull)
	require.Equal(t, 30, f.RetentionDays)
	require.False(t, f.CoarseGroupSync)
	require.False(t, f.FeeReaderRestriction)
	require.True(t, f.FetchOptions)
}

func TestFlagsOverrides(t *testing.T) {
	db := testDB(t)
	rows := []models.Param{
		{Section: SectionSync, Name: ParamDeleteOnExpire, Value: "off"},
		{Section: SectionSync, Name: ParamAttLogPull, Value: "on"},
		{Section: SectionSync, Name: ParamRetentionDays, Value: "7"},
		{Section: SectionSync, Name: ParamCoarseGroupSync, Value: "1"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	f := Load(db).Flags(context.Background())
	require.False(t, f.DeleteOnExpire)
	require.True(t, f.AttLogPull)
	require.Equal(t, 7, f.RetentionDays)
	require.True(t, f.CoarseGroupSync)
}

func TestBoolGarbageFallsBack(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.Param{Section: SectionSync, Name: ParamDeleteOnExpire, Value: "maybe"}).Error)
	p := Load(db)
	require.True(t, p.Bool(context.Background(), SectionSync, ParamDeleteOnExpire, true))
}

func TestIntGarbageFallsBack(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.Param{Section: SectionSync, Name: ParamRetentionDays, Value: "soon"}).Error)
	p := Load(db)
	require.Equal(t, 30, p.Int(context.Background(), SectionSync, ParamRetentionDays, 30))
}
