package models

import "time"

// Product is a catalog item. The description is stored only in encrypted
// form, under the key of the user in CreatedByID.
type Product struct {
	ID                   int64
	Name                 string
	EncryptedDescription string
	PriceCents           int64
	StockQuantity        int64
	CreatedAt            time.Time
	UpdatedAt            *time.Time
	CreatedByID          int64
	// CreatedByName is filled by list queries that join users.
	CreatedByName string
}
