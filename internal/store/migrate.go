package store

import "fmt"

func AutoMigrate(db *DB) error {
	if err := db.AutoMigrate(
		&Payer{},
		&ValidatorSlot{},
		&Subscription{},
		&InstallmentExecution{},
		&LogCursor{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
