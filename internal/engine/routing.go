package engine

import "github.com/repcrec/repcrec/internal/types"

// replicated reports whether v is stored at every site (even index) or
// pinned to a single home site (odd index), per the available-copies rule.
func replicated(v types.VarID) bool {
	return int(v)%2 == 0
}

// homeSite returns the single site that stores a non-replicated variable.
func homeSite(v types.VarID, siteNum int) types.SiteID {
	return types.SiteID(1 + int(v)%siteNum)
}

// routingSites returns every site a read or write of v must consider: all
// sites for a replicated variable, or just its home site otherwise. This is
// the one place that decision is made; Site itself has no opinion about who
// else stores a variable.
func routingSites(v types.VarID, siteNum int) []types.SiteID {
	if !replicated(v) {
		return []types.SiteID{homeSite(v, siteNum)}
	}
	sites := make([]types.SiteID, siteNum)
	for i := 0; i < siteNum; i++ {
		sites[i] = types.SiteID(i + 1)
	}
	return sites
}
