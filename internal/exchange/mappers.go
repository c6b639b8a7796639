package exchange

import (
	"fmt"

	"exchange-ledger/internal/exchange/binance"
	"exchange-ledger/internal/exchange/bybit"
	"exchange-ledger/internal/normalize"
)

// MapperFor returns the fill mapper registered for a vendor key.
func MapperFor(vendor string) (normalize.Mapper, error) {
	switch vendor {
	case binance.Vendor:
		return binance.NewMapper(), nil
	case bybit.Vendor:
		return bybit.NewMapper(), nil
	default:
		return nil, fmt.Errorf("no fill mapper for vendor %q", vendor)
	}
}
