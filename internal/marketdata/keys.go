package marketdata

import (
	"fmt"
	"strings"
)

// Cache keys are deterministic strings derived from dataset type and
// parameters, in the hierarchical form dataset:param:param.

func marketsKey(vsCurrency string, perPage int, ids []string) string {
	key := fmt.Sprintf("markets:%s:%d", vsCurrency, perPage)
	if len(ids) > 0 {
		key += ":" + strings.Join(ids, ",")
	}
	return key
}

func coinKey(id string) string {
	return "coin:" + id
}

func priceKey(ids, vsCurrencies []string) string {
	return fmt.Sprintf("price:%s:%s", strings.Join(ids, ","), strings.Join(vsCurrencies, ","))
}

func ohlcKey(id, vsCurrency string, days int) string {
	return fmt.Sprintf("ohlc:%s:%s:%d", id, vsCurrency, days)
}

func chartKey(id, vsCurrency, days, interval string) string {
	return fmt.Sprintf("chart:%s:%s:%s:%s", id, vsCurrency, days, interval)
}

func historicalKey(id, vsCurrency, days string) string {
	return fmt.Sprintf("historical:%s:%s:%s", id, vsCurrency, days)
}

func searchKey(query string) string {
	return "search:" + strings.ToLower(query)
}

const (
	globalKey   = "global"
	trendingKey = "trending"
	top50Key    = "top50:performance:90d"
	bitcoinKey  = "historical:bitcoin:usd:genesis"
)
