package db

import (
	"log"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/llmstream/openrouter-bot/internal/chat"
)

// Connect opens the database from a DSN. A mysql DSN (user:pass@tcp(...)/db)
// selects the mysql driver; anything else is treated as a sqlite path.
func Connect(dsn string) *gorm.DB {
	var (
		gdb *gorm.DB
		err error
	)
	if strings.Contains(dsn, "@tcp(") {
		gdb, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	} else {
		gdb, err = gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	if err := gdb.AutoMigrate(&chat.User{}, &chat.Turn{}, &chat.Model{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
