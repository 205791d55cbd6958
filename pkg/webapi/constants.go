package webapi

// Login response status codes.
const (
	loginTOTPNeeded     = 6
	loginBadCredentials = 3
)

// ProductTypeID identifies a product category in search and lookup calls.
type ProductTypeID int

const (
	ProductTypeStock            ProductTypeID = 1
	ProductTypeBonds            ProductTypeID = 2
	ProductTypeFutures          ProductTypeID = 7
	ProductTypeOptions          ProductTypeID = 8
	ProductTypeInvestFunds      ProductTypeID = 13
	ProductTypeLeverageProducts ProductTypeID = 14
	ProductTypeETFs             ProductTypeID = 131
	ProductTypeCurrency         ProductTypeID = 311
	ProductTypeCFDs             ProductTypeID = 535
	ProductTypeWarrants         ProductTypeID = 536
)

// OrderAction is the direction of an order.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

// OrderType matches the order type field of the web trader.
type OrderType int

const (
	OrderTypeLimited     OrderType = 0
	OrderTypeStopLimited OrderType = 1
	OrderTypeMarket      OrderType = 2
	OrderTypeStopLoss    OrderType = 3
)

// OrderTime is the validity period of an order.
type OrderTime int

const (
	OrderTimeDay       OrderTime = 1
	OrderTimePermanent OrderTime = 3
)

// PriceResolution is the tick resolution of a price series.
type PriceResolution string

const (
	// PriceResolutionMinute is one tick per minute.
	PriceResolutionMinute PriceResolution = "PT1M"

	// PriceResolutionDay is one tick per day.
	PriceResolutionDay PriceResolution = "P1D"
)

// PricePeriod is the look-back window of a price series.
type PricePeriod string

const (
	PricePeriodDay     PricePeriod = "P1D"
	PricePeriodWeek    PricePeriod = "P1W"
	PricePeriodMonth   PricePeriod = "P1M"
	PricePeriod3Month  PricePeriod = "P3M"
	PricePeriod6Month  PricePeriod = "P6M"
	PricePeriodYear    PricePeriod = "P1Y"
	PricePeriod50Year  PricePeriod = "P50Y"
)
