package domain

// Currency is the enumerated currency code used by the bank's notification
// emails. The provider only ever reports Chilean pesos or US dollars.
type Currency string

const (
	CLP   Currency = "CLP"
	Dolar Currency = "Dolar"
)

// Exponent returns the number of decimal places in the currency's minor
// unit. Pesos have no subunit; dollar amounts carry cents.
func (c Currency) Exponent() int32 {
	if c == Dolar {
		return 2
	}
	return 0
}
