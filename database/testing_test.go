package database

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rpupo63/realestate-site-backend/models"
)

func newTestDatabase(t *testing.T) Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return New(db)
}

func fakeProjectInput(overrides func(*ProjectInput)) ProjectInput {
	year := gofakeit.Number(2000, 2030)
	in := ProjectInput{
		Title:       gofakeit.Company() + " Residences",
		Subtitle:    gofakeit.Sentence(4),
		Description: gofakeit.Paragraph(1, 3, 10, " "),
		Category:    "residential",
		Status:      models.StatusOnSale,
		Location:    gofakeit.City(),
		Year:        &year,
		Features:    []string{"pool", "gym"},
	}
	if overrides != nil {
		overrides(&in)
	}
	return in
}
