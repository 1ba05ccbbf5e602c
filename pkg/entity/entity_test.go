package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/TFMV/rawlayer/pkg/schema"
)

func TestValuesMatchDeclaredColumns(t *testing.T) {
	rows := []Row{Org{}, User{}, Product{}, Order{}, Payment{}, Event{}}
	for _, row := range rows {
		table := schema.MustLookup(row.Table())
		assert.Len(t, row.Values(), table.Schema.NumFields(), row.Table())
	}
}

func TestUserNullEmail(t *testing.T) {
	u := User{UserID: "u", CreatedAt: time.Unix(0, 0).UTC()}
	email, ok := u.Values()[2].(*string)
	assert.True(t, ok)
	assert.Nil(t, email)
}

func TestOrderValueOrder(t *testing.T) {
	o := Order{OrderID: "o", Quantity: 3, UnitPrice: decimal.New(1999, -2), Currency: "USD"}
	v := o.Values()
	assert.Equal(t, "o", v[0])
	assert.Equal(t, int64(3), v[4])
	assert.Equal(t, "19.99", v[5].(decimal.Decimal).String())
	assert.Equal(t, "USD", v[6])
}
