package cache

import "time"

// TTL tiers. Entries never pick arbitrary lifetimes; they pick a tier.
// More volatile data gets shorter tiers.
const (
	TTLVeryShort = 60 * time.Second
	TTLShort     = 180 * time.Second
	TTLMedium    = 300 * time.Second
	TTLLong      = 900 * time.Second
	TTLVeryLong  = 1800 * time.Second
	TTLHour      = 3600 * time.Second
	TTLTwoHours  = 7200 * time.Second
)

// Per-entity picks. Categories and product lists change least and sit in
// the longest tiers; search results churn fastest and sit in the shortest.
const (
	TTLProduct        = TTLMedium
	TTLProductList    = TTLVeryLong
	TTLCategory       = TTLVeryLong
	TTLCategoriesList = TTLHour
	TTLUserOrders     = TTLLong
	TTLOrder          = TTLVeryLong
	TTLSearch         = TTLShort
	TTLPricing        = TTLLong
	TTLSession        = TTLMedium
	TTLWarmProducts   = TTLMedium
	TTLWarmSearch     = TTLShort
)
