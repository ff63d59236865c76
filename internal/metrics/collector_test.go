package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticSource map[string]int

func (s staticSource) KeysByNamespace() map[string]int { return s }

func TestCollector_RefreshesGauge(t *testing.T) {
	c := NewCollector(staticSource{"product": 3, "search": 7}, 0)
	c.Collect()

	if got := testutil.ToFloat64(CacheKeysTracked.WithLabelValues("product")); got != 3 {
		t.Errorf("product gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(CacheKeysTracked.WithLabelValues("search")); got != 7 {
		t.Errorf("search gauge = %v, want 7", got)
	}
}

func TestCollector_ResetsVanishedNamespaces(t *testing.T) {
	src := staticSource{"product": 3}
	c := NewCollector(src, 0)
	c.Collect()

	delete(src, "product")
	c.Collect()

	if got := testutil.ToFloat64(CacheKeysTracked.WithLabelValues("product")); got != 0 {
		t.Errorf("stale namespace gauge = %v, want 0", got)
	}
}
