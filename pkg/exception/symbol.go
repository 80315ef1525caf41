package exception

import "github.com/yanun0323/errors"

// Symbol directory errors
var (
	ErrUnknownSymbol     = errors.New("symbol: unknown symbol")
	ErrUnknownSymbolID   = errors.New("symbol: unknown symbol id")
	ErrSymbolListEmpty   = errors.New("symbol: venue returned empty symbol list")
	ErrConstraintMissing = errors.New("symbol: trading constraints unavailable")
)
