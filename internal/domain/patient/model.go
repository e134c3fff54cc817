package patient

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Sort orders accepted by the patient listing.
var Sorts = []string{"name", "age", "-age", "id"}

// Query filters and orders the patient listing.
type Query struct {
	Q    string `schema:"q"`
	Sort string `schema:"sort"`
}

// Apply returns the patients matching q in q's order. The input is not
// modified.
func (q Query) Apply(patients []apiclient.Patient) []apiclient.Patient {
	needle := strings.ToLower(strings.TrimSpace(q.Q))
	out := lo.Filter(patients, func(p apiclient.Patient, _ int) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(p.DisplayName()), needle) ||
			strings.Contains(strings.ToLower(p.Key()), needle)
	})

	switch q.Sort {
	case "age":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Age < out[j].Age })
	case "-age":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Age > out[j].Age })
	case "id":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	case "name":
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].DisplayName()) < strings.ToLower(out[j].DisplayName())
		})
	}
	return out
}

// Find returns the patient whose key is id.
func Find(patients []apiclient.Patient, id string) (apiclient.Patient, bool) {
	return lo.Find(patients, func(p apiclient.Patient) bool { return p.Key() == id })
}
