package visit

import (
	"math"
	"sort"
	"time"
)

const (
	SortDistance = "distance"
	SortPay      = "pay"
	SortDate     = "date"
	SortDuration = "duration"
	SortNewest   = "newest"
)

var validSorts = map[string]bool{
	SortDistance: true, SortPay: true, SortDate: true, SortDuration: true, SortNewest: true,
}

const earthRadiusMiles = 3958.8

// DistanceMiles returns the great-circle distance between two points.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Origin is the point job distances are measured from.
type Origin struct {
	Latitude  float64
	Longitude float64
}

// JobQuery shapes a job board listing.
type JobQuery struct {
	SortBy string
	// MaxDistanceMiles drops jobs farther than this from Origin. Zero
	// disables the filter. Jobs without coordinates are dropped when it is
	// set.
	MaxDistanceMiles float64
	Origin           *Origin
	// ScheduledFrom drops visits scheduled before this day. Zero keeps all.
	ScheduledFrom time.Time
}

// BuildJobs annotates visits with their distance from q.Origin, applies the
// distance filter and sorts them. Ties keep the input order.
func BuildJobs(visits []*Visit, q JobQuery) []Job {
	jobs := make([]Job, 0, len(visits))
	for _, v := range visits {
		if !q.ScheduledFrom.IsZero() && v.ScheduledDate.Before(q.ScheduledFrom) {
			continue
		}
		j := Job{Visit: v}
		if q.Origin != nil && v.HasLocation() {
			d := DistanceMiles(q.Origin.Latitude, q.Origin.Longitude, *v.Latitude, *v.Longitude)
			j.DistanceMiles = &d
		}
		if q.MaxDistanceMiles > 0 && q.Origin != nil {
			if j.DistanceMiles == nil || *j.DistanceMiles > q.MaxDistanceMiles {
				continue
			}
		}
		jobs = append(jobs, j)
	}
	SortJobs(jobs, q.SortBy)
	return jobs
}

// SortJobs orders jobs in place. Unknown keys sort by date.
func SortJobs(jobs []Job, by string) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		switch by {
		case SortDistance:
			// Jobs with unknown distance go last.
			if a.DistanceMiles == nil || b.DistanceMiles == nil {
				return a.DistanceMiles != nil && b.DistanceMiles == nil
			}
			return *a.DistanceMiles < *b.DistanceMiles
		case SortPay:
			return a.PayRate > b.PayRate
		case SortDuration:
			return a.DurationMinutes < b.DurationMinutes
		case SortNewest:
			return postedAt(a.Visit).After(postedAt(b.Visit))
		default:
			if !a.ScheduledDate.Equal(b.ScheduledDate) {
				return a.ScheduledDate.Before(b.ScheduledDate)
			}
			return a.StartTime < b.StartTime
		}
	})
}

func postedAt(v *Visit) time.Time {
	if v.PostedAt != nil {
		return *v.PostedAt
	}
	return v.CreatedAt
}
