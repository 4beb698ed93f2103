package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

const htmlNotification = `
<html><body><table><tr>
<td>Señor(a) Pérez:</td>
</tr><tr>
<td>Te informamos que se ha realizado una compra por $45.990 con
Tarjeta de Crédito ****1234 en MERCADO    LIBRE el 15/03/2026 18:45.</td>
</tr></table></body></html>`

const plainNotification = `Te informamos que se ha realizado una compra por US$129,99 con Tarjeta de Crédito ****9876 en AMAZON.COM el 02/01/2026 09:05.`

func TestExtract_HTMLBody(t *testing.T) {
	c := Extract(htmlNotification)
	if c == nil {
		t.Fatal("Extract returned nil for a well-formed notification")
	}

	if !c.Amount.Equal(decimal.NewFromInt(45990)) {
		t.Errorf("amount = %s, want 45990", c.Amount)
	}
	if c.Currency != domain.CLP {
		t.Errorf("currency = %s, want CLP", c.Currency)
	}
	if c.CardLastDigits != "1234" {
		t.Errorf("card digits = %s, want 1234", c.CardLastDigits)
	}
	if c.Merchant != "MERCADO LIBRE" {
		t.Errorf("merchant = %q, want collapsed whitespace", c.Merchant)
	}

	want := time.Date(2026, time.March, 15, 18, 45, 0, 0, dates.Santiago())
	if !c.TransactionDate.Equal(want) {
		t.Errorf("date = %v, want %v", c.TransactionDate, want)
	}
}

func TestExtract_PlainTextDollarBody(t *testing.T) {
	c := Extract(plainNotification)
	if c == nil {
		t.Fatal("Extract returned nil for a plain-text notification")
	}

	if c.Currency != domain.Dolar {
		t.Errorf("currency = %s, want Dolar", c.Currency)
	}
	if want := decimal.RequireFromString("129.99"); !c.Amount.Equal(want) {
		t.Errorf("amount = %s, want %s", c.Amount, want)
	}
	if c.Merchant != "AMAZON.COM" {
		t.Errorf("merchant = %q", c.Merchant)
	}
}

func TestExtract_Discards(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unrelated email",
			body: "<html><body><td>Tu estado de cuenta está disponible.</td></body></html>",
		},
		{
			name: "missing card digits",
			body: "<td>compra por $10.000 en TIENDA el 10/02/2026 12:00</td>",
		},
		{
			name: "missing merchant framing",
			body: "<td>compra por $10.000 con Tarjeta de Crédito ****1111 el 10/02/2026</td>",
		},
		{
			name: "missing time token",
			body: "<td>compra por $10.000 con Tarjeta de Crédito ****1111 en TIENDA el 10/02/2026</td>",
		},
		{
			name: "impossible calendar date",
			body: "<td>compra por $10.000 con Tarjeta de Crédito ****1111 en TIENDA el 31/02/2026 10:00</td>",
		},
		{
			name: "empty body",
			body: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c := Extract(tt.body); c != nil {
				t.Errorf("Extract = %+v, want nil", c)
			}
		})
	}
}

func TestExtract_ThousandsAndDecimals(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"$1.234.567", "1234567"},
		{"$999", "999"},
		{"US$1.299,50", "1299.50"},
		{"$12.500,00", "12500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			body := "<td>compra por " + tt.raw +
				" con Tarjeta de Crédito ****4321 en TIENDA el 05/06/2026 14:30</td>"
			c := Extract(body)
			if c == nil {
				t.Fatal("Extract returned nil")
			}
			if want := decimal.RequireFromString(tt.want); !c.Amount.Equal(want) {
				t.Errorf("amount = %s, want %s", c.Amount, want)
			}
		})
	}
}
