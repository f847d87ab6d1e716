// Package canonical resolves the single authoritative (name, lat, lng)
// for every station id observed across a set of rides.
//
// Station coordinates in the monthly exports come from GPS readings, so
// the same station id shows up with many nearby coordinate pairs and the
// occasional renamed or re-entered station name. The resolver picks, for
// each id, the exact combination that was observed most often, which keeps
// every emitted coordinate a real observed value rather than an average.
package canonical

import (
	"math"
	"sort"
	"strings"

	"github.com/winstonk6/case-study-bike-share/internal/pkg/geospatial"
)

// Observation is one station sighting taken from a ride row. StationID is
// empty when the source row had no station id (dockless rides); such
// observations carry no identity and are skipped by the resolver.
type Observation struct {
	StationID string
	Name      string
	Lat       float64
	Lng       float64
}

// Station is the resolved record for one station id.
//
// Observations is how often the winning combination was seen, Variants how
// many distinct (name, lat, lng) combinations competed for the id, and
// DispersionMeters the largest great-circle distance between any two of
// those variants. A large dispersion flags ids whose raw coordinates are
// too scattered to trust blindly.
type Station struct {
	StationID        string
	Name             string
	Lat              float64
	Lng              float64
	Observations     int64
	Variants         int
	DispersionMeters float64
}

type variantKey struct {
	name     string
	lat, lng float64
}

// Resolver accumulates observations and resolves them into one canonical
// record per station id. The zero value is not usable; construct with New.
// Resolver is not safe for concurrent use.
type Resolver struct {
	counts map[string]map[variantKey]int64
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{counts: make(map[string]map[variantKey]int64)}
}

// Add records a single observation.
func (r *Resolver) Add(obs Observation) {
	r.AddN(obs, 1)
}

// AddN records an observation that was already counted n times upstream,
// e.g. by a SQL GROUP BY over the ride table. Observations without a
// station id, with a non-positive n, or with non-finite coordinates are
// dropped: NaN neither groups nor orders, so admitting it would make the
// outcome depend on input order.
func (r *Resolver) AddN(obs Observation, n int64) {
	if obs.StationID == "" || n <= 0 {
		return
	}
	if !finite(obs.Lat) || !finite(obs.Lng) {
		return
	}

	key := variantKey{name: obs.Name, lat: obs.Lat, lng: obs.Lng}
	variants := r.counts[obs.StationID]
	if variants == nil {
		variants = make(map[variantKey]int64)
		r.counts[obs.StationID] = variants
	}
	variants[key] += n
}

// Len returns the number of distinct station ids accumulated so far.
func (r *Resolver) Len() int {
	return len(r.counts)
}

// Resolve picks the winning combination for every accumulated station id
// and returns one record per id. The result is independent of the order
// observations were added in: the most frequent combination wins, and
// exact-count ties go to the smallest name, then the smallest lat, then
// the smallest lng.
//
// An empty accumulator resolves to an empty map. Resolve does not consume
// the accumulator; callers may keep adding and resolve again.
func (r *Resolver) Resolve() map[string]Station {
	out := make(map[string]Station, len(r.counts))
	for stationID, variants := range r.counts {
		var (
			winner variantKey
			best   int64
			first  = true
		)
		for key, n := range variants {
			if first || n > best || (n == best && lessKey(key, winner)) {
				winner, best, first = key, n, false
			}
		}

		out[stationID] = Station{
			StationID:        stationID,
			Name:             winner.name,
			Lat:              winner.lat,
			Lng:              winner.lng,
			Observations:     best,
			Variants:         len(variants),
			DispersionMeters: dispersion(variants),
		}
	}
	return out
}

// ResolveSorted returns the resolved records ordered by station id, for
// callers that need a stable listing (exports, batch upserts).
func (r *Resolver) ResolveSorted() []Station {
	resolved := r.Resolve()
	out := make([]Station, 0, len(resolved))
	for _, s := range resolved {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

// Resolve is a convenience over a fully materialized observation slice.
func Resolve(observations []Observation) map[string]Station {
	r := New()
	for _, obs := range observations {
		r.Add(obs)
	}
	return r.Resolve()
}

// lessKey orders variant keys by name, then lat, then lng. It is the
// tie-break between combinations with equal counts and must stay a total
// order so resolution never depends on map iteration order.
func lessKey(a, b variantKey) bool {
	if c := strings.Compare(a.name, b.name); c != 0 {
		return c < 0
	}
	if a.lat != b.lat {
		return a.lat < b.lat
	}
	return a.lng < b.lng
}

// dispersion returns the largest pairwise great-circle distance between
// the coordinate variants of one station id. Variant counts per id are
// tiny in practice, so the quadratic scan is fine.
func dispersion(variants map[variantKey]int64) float64 {
	if len(variants) < 2 {
		return 0
	}

	points := make([]variantKey, 0, len(variants))
	seen := make(map[[2]float64]struct{}, len(variants))
	for key := range variants {
		coord := [2]float64{key.lat, key.lng}
		if _, ok := seen[coord]; ok {
			continue
		}
		seen[coord] = struct{}{}
		points = append(points, key)
	}

	var max float64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := geospatial.Haversine(points[i].lat, points[i].lng, points[j].lat, points[j].lng)
			if d > max {
				max = d
			}
		}
	}
	return max
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
