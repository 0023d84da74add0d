package enums

// Currency is the ISO 4217 code plan prices are quoted in.
type Currency string

const CurrencyUSD Currency = "USD"

func (c Currency) String() string { return string(c) }
