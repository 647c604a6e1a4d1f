package wallet

import "github.com/shopspring/decimal"

// Balance reports an address's spendable holdings. There is no
// unconfirmed/confirmed split: every accepted block is final the moment
// it is appended, so a balance is simply the sum of its unspent entries.
type Balance struct {
	Confirmed decimal.Decimal
}
