// Package cache memoizes extracted profiles in memcached, keyed by a digest
// of the request signature.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/nci/gomemcache/memcache"
	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/timeseries"
	"github.com/earthscan/tsprofile/utils"
)

type ProfileCache struct {
	mc      *memcache.Client
	expiry  int32
	verbose bool
}

func New(address string, expirySecs int32, verbose bool) *ProfileCache {
	return &ProfileCache{
		mc:      memcache.New(address),
		expiry:  expirySecs,
		verbose: verbose,
	}
}

// Key digests a profile request. The source URI order is normalized so
// logically identical requests share an entry.
func Key(points []orb.Point, crs string, uris []string, saveSources bool) string {
	sorted := append([]string(nil), uris...)
	sort.Strings(sorted)

	var sig strings.Builder
	fmt.Fprintf(&sig, "%s|%v|", crs, saveSources)
	for _, pt := range points {
		fmt.Fprintf(&sig, "%.9f,%.9f;", pt[0], pt[1])
	}
	sig.WriteString(strings.Join(sorted, "|"))

	buf := md5.Sum([]byte(sig.String()))
	return hex.EncodeToString(buf[:])
}

func (c *ProfileCache) Get(key string) ([]*timeseries.TemporalProfile, bool) {
	item, err := c.mc.Get(key)
	if err != nil {
		return nil, false
	}
	profiles, err := utils.DecodeProfiles(item.Value)
	if err != nil {
		if c.verbose {
			log.Printf("profile cache: dropping corrupt entry %s: %v", key, err)
		}
		c.mc.Delete(key)
		return nil, false
	}
	return profiles, true
}

func (c *ProfileCache) Put(key string, profiles []*timeseries.TemporalProfile) {
	value, err := utils.EncodeProfiles(profiles)
	if err != nil {
		log.Printf("profile cache: encode error: %v", err)
		return
	}
	err = c.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: c.expiry})
	if err != nil && c.verbose {
		log.Printf("profile cache: set error: %v", err)
	}
}
