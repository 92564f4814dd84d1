package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// assignID fills an unset primary key before insert so rows can be created
// on databases without a uuid default.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&ProductImage{},
		&Promotion{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Review{},
	}
}

func (u *User) BeforeCreate(*gorm.DB) error         { assignID(&u.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error      { assignID(&p.ID); return nil }
func (i *ProductImage) BeforeCreate(*gorm.DB) error { assignID(&i.ID); return nil }
func (p *Promotion) BeforeCreate(*gorm.DB) error    { assignID(&p.ID); return nil }
func (c *CartItem) BeforeCreate(*gorm.DB) error     { assignID(&c.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error        { assignID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error    { assignID(&i.ID); return nil }
func (r *Review) BeforeCreate(*gorm.DB) error       { assignID(&r.ID); return nil }

func (p Product) CursorKey() pagination.Cursor   { return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID} }
func (o Order) CursorKey() pagination.Cursor     { return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID} }
func (r Review) CursorKey() pagination.Cursor    { return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (p Promotion) CursorKey() pagination.Cursor { return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID} }
func (u User) CursorKey() pagination.Cursor      { return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID} }
