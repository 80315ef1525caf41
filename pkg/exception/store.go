package exception

import "github.com/yanun0323/errors"

// Store errors
var (
	ErrTradeNotFound  = errors.New("store: trade record not found")
	ErrNilStoreClient = errors.New("store: nil database client")
)
