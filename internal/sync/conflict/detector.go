// Package conflict implements collision detection and resolution between
// locally authored records and their already-published remote counterparts.
package conflict

import (
	"math"
	"strings"

	"github.com/jcarville/intelsync/internal/models"
)

const (
	// ProximityEpsilon is the coordinate delta, in degrees, under which two
	// records are considered to describe the same location. Roughly 100m at
	// the equator.
	ProximityEpsilon = 0.001

	// duplicateThreshold is the similarity score above which two nearby
	// records are classified as the same report authored twice.
	duplicateThreshold = 0.8

	// relatedThreshold is the similarity score above which two nearby
	// records are flagged for operator review without being merged
	// automatically.
	relatedThreshold = 0.5
)

// Detector classifies collisions between a local record and the known set of
// remote records. Detection is a heuristic: independently authored reports of
// the same incident are rarely byte-identical, so approximate matching is
// intentional.
type Detector struct {
	// Epsilon overrides ProximityEpsilon when positive.
	Epsilon float64
}

// NewDetector returns a Detector with the default proximity window.
func NewDetector() *Detector {
	return &Detector{Epsilon: ProximityEpsilon}
}

func (d *Detector) epsilon() float64 {
	if d.Epsilon > 0 {
		return d.Epsilon
	}
	return ProximityEpsilon
}

// Detect checks the candidate against every known remote record and returns
// a ConflictInfo for the first collision found, or nil when no remote record
// collides. Remote records are evaluated in input order, so repeated calls
// with the same inputs return the same result.
func (d *Detector) Detect(candidate *models.OfflineRecord, known []models.RemoteRecord) *models.ConflictInfo {
	if candidate == nil {
		return nil
	}
	eps := d.epsilon()
	for _, remote := range known {
		if !nearby(candidate.Latitude, candidate.Longitude, remote.Latitude, remote.Longitude, eps) {
			continue
		}
		titleSim := wordSimilarity(candidate.Title, remote.Title)
		contentSim := wordSimilarity(candidate.Content, remote.Content)

		var kind models.ConflictKind
		switch {
		case titleSim > duplicateThreshold || contentSim > duplicateThreshold:
			kind = models.ConflictKindDuplicate
		case titleSim > relatedThreshold || contentSim > relatedThreshold:
			kind = models.ConflictKindCoordinateMismatch
		default:
			// Nearby but textually unrelated: not a collision.
			continue
		}
		return &models.ConflictInfo{
			Kind:            kind,
			RemoteCandidate: remote,
		}
	}
	return nil
}

// DefaultStrategy returns the resolution applied automatically for a
// conflict kind when no operator policy overrides it. Only duplicates are
// safe to merge without review.
func DefaultStrategy(kind models.ConflictKind) models.ResolutionStrategy {
	if kind == models.ConflictKindDuplicate {
		return models.ResolutionMerge
	}
	return models.ResolutionManual
}

func nearby(lat1, lng1, lat2, lng2, eps float64) bool {
	return math.Abs(lat1-lat2) < eps && math.Abs(lng1-lng2) < eps
}

// wordSimilarity scores two strings by case-insensitive word-token overlap.
// The overlap is normalised by the smaller token set, so a title extended
// with a few extra words still scores as a near-duplicate of the original.
// Returns a value in [0, 1]; zero when either string has no tokens.
func wordSimilarity(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	smaller, larger := setA, setB
	if len(setB) < len(setA) {
		smaller, larger = setB, setA
	}
	shared := 0
	for tok := range smaller {
		if _, ok := larger[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(smaller))
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = struct{}{}
	}
	return out
}
