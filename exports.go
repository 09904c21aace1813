package affiliate

import (
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Date is re-exported from types package.
type Date = types.Date

// Entity is re-exported from types package.
type Entity = types.Entity

// PaymentEvent is re-exported from event package.
type PaymentEvent = event.PaymentEvent

// Re-export Money constructors
var (
	USD        = types.USD
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMoney = types.ParseMoney
)

// Re-export Date helpers
var (
	DateOf    = types.DateOf
	ParseDate = types.ParseDate
	Epoch     = types.Epoch
	FarFuture = types.FarFuture
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
