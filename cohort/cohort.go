// Package cohort implements CohortCreator: deterministic, RIR-diverse
// cohort construction seeded by (hash_secret, target). spec.md section
// 9 calls for the seeded PRNG to be implemented explicitly rather than
// relying on the host platform's default shuffler, so the stream is
// derived directly from a SHA-256 digest instead of seeding
// math/rand's global source.
package cohort

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/open-mpic/mpic-core-go/core"
)

// seededSource is a minimal deterministic PRNG stream derived from a
// SHA-256 seed: each call to next() re-hashes the running state,
// giving an unbounded, reproducible sequence without depending on
// math/rand's seeding semantics (which are not guaranteed stable
// across Go versions).
type seededSource struct {
	state [32]byte
}

func newSeededSource(seed [32]byte) *seededSource {
	return &seededSource{state: seed}
}

func (s *seededSource) next() uint64 {
	s.state = sha256.Sum256(s.state[:])
	return binary.BigEndian.Uint64(s.state[:8])
}

// intn returns a deterministic value in [0, n).
func (s *seededSource) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.next() % uint64(n))
}

// shuffle permutes perspectives in place using a Fisher-Yates shuffle
// driven by s, matching the deterministic-reshuffle requirement of
// spec.md section 4.4.
func (s *seededSource) shuffle(perspectives []core.Perspective) {
	for i := len(perspectives) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		perspectives[i], perspectives[j] = perspectives[j], perspectives[i]
	}
}

// Seed derives the deterministic seed for (hashSecret, target), per
// spec.md section 4.4: SHA-256(hash_secret ++ lowercase(target)).
func Seed(hashSecret, target string) [32]byte {
	h := sha256.New()
	h.Write([]byte(hashSecret))
	h.Write([]byte(strings.ToLower(target)))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BuildCohorts partitions allPerspectives into as many
// non-overlapping, RIR-diverse cohorts of size cohortSize as the RIR
// buckets allow, in a fully deterministic order given (hashSecret,
// target). Leftover perspectives that can't fill a complete cohort
// are discarded for this request, per spec.md section 4.4.
func BuildCohorts(allPerspectives []core.Perspective, cohortSize int, hashSecret, target string) ([][]core.Perspective, error) {
	if cohortSize > len(allPerspectives) {
		return nil, fmt.Errorf("cohort: cohort size %d exceeds available perspective count %d", cohortSize, len(allPerspectives))
	}
	if cohortSize <= 0 {
		return nil, fmt.Errorf("cohort: cohort size must be positive, got %d", cohortSize)
	}

	seed := Seed(hashSecret, target)
	src := newSeededSource(seed)

	buckets := bucketByRIR(allPerspectives)
	// Shuffle each bucket deterministically, visiting buckets in RIR
	// name order so the seeded stream is consumed the same way on every
	// run, then sort bucket order by (size desc, RIR name asc) so
	// "largest bucket first" is itself deterministic when two RIRs tie
	// in size.
	rirs := make([]string, 0, len(buckets))
	for rir := range buckets {
		rirs = append(rirs, rir)
	}
	sort.Strings(rirs)
	for _, rir := range rirs {
		src.shuffle(buckets[rir])
	}
	sort.Slice(rirs, func(i, j int) bool {
		if len(buckets[rirs[i]]) != len(buckets[rirs[j]]) {
			return len(buckets[rirs[i]]) > len(buckets[rirs[j]])
		}
		return rirs[i] < rirs[j]
	})

	var cohorts [][]core.Perspective
	for {
		cohort, ok := assembleOneCohort(buckets, rirs, cohortSize)
		if !ok {
			break
		}
		cohorts = append(cohorts, cohort)
	}
	return cohorts, nil
}

func bucketByRIR(perspectives []core.Perspective) map[string][]core.Perspective {
	buckets := make(map[string][]core.Perspective)
	for _, p := range perspectives {
		buckets[p.RIR] = append(buckets[p.RIR], p)
	}
	return buckets
}

// assembleOneCohort round-robins from buckets (in rirs order,
// largest-bucket-first) until it has cohortSize perspectives,
// consuming them from the buckets as it goes so the next call builds
// a disjoint cohort. It reports ok=false once the buckets can no
// longer fill a complete, RIR-diverse cohort.
func assembleOneCohort(buckets map[string][]core.Perspective, rirs []string, cohortSize int) ([]core.Perspective, bool) {
	total := 0
	for _, rir := range rirs {
		total += len(buckets[rir])
	}
	if total < cohortSize {
		return nil, false
	}

	var cohort []core.Perspective
	rirsUsed := map[string]bool{}
	idx := 0
	for len(cohort) < cohortSize {
		rir := rirs[idx%len(rirs)]
		idx++
		if len(buckets[rir]) == 0 {
			// This RIR is exhausted; total >= cohortSize guarantees
			// some other RIR still has members to contribute.
			continue
		}
		cohort = append(cohort, buckets[rir][0])
		buckets[rir] = buckets[rir][1:]
		rirsUsed[rir] = true
	}

	if cohortSize >= 3 && len(rirsUsed) < 2 {
		// Can't satisfy the RIR-diversity floor from what's left;
		// this batch of perspectives is discarded rather than
		// returned as an under-diverse cohort.
		return nil, false
	}
	return cohort, true
}
