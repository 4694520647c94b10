package cohort

import (
	"testing"

	"github.com/open-mpic/mpic-core-go/core"
	"github.com/open-mpic/mpic-core-go/internal/test"
)

func samplePerspectives() []core.Perspective {
	return []core.Perspective{
		{Code: "us-east", RIR: "ARIN"},
		{Code: "us-west", RIR: "ARIN"},
		{Code: "eu-west", RIR: "RIPE"},
		{Code: "eu-central", RIR: "RIPE"},
		{Code: "ap-south", RIR: "APNIC"},
		{Code: "ap-east", RIR: "APNIC"},
	}
}

func TestBuildCohortsIsDeterministic(t *testing.T) {
	a, err := BuildCohorts(samplePerspectives(), 3, "secret", "example.com")
	test.AssertNotError(t, err, "BuildCohorts")
	b, err := BuildCohorts(samplePerspectives(), 3, "secret", "example.com")
	test.AssertNotError(t, err, "BuildCohorts")

	test.AssertDeepEquals(t, a, b)
}

func TestBuildCohortsVariesWithTarget(t *testing.T) {
	a, err := BuildCohorts(samplePerspectives(), 3, "secret", "example.com")
	test.AssertNotError(t, err, "BuildCohorts")
	b, err := BuildCohorts(samplePerspectives(), 3, "secret", "other.example")
	test.AssertNotError(t, err, "BuildCohorts")

	if reflectDeepEqual(a, b) {
		t.Fatalf("expected different targets to produce different cohort orderings")
	}
}

func reflectDeepEqual(a, b [][]core.Perspective) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestBuildCohortsSpansAtLeastTwoRIRs(t *testing.T) {
	cohorts, err := BuildCohorts(samplePerspectives(), 3, "secret", "example.com")
	test.AssertNotError(t, err, "BuildCohorts")
	if len(cohorts) == 0 {
		t.Fatalf("expected at least one cohort")
	}
	for _, c := range cohorts {
		rirs := map[string]bool{}
		for _, p := range c {
			rirs[p.RIR] = true
		}
		if len(rirs) < 2 {
			t.Fatalf("cohort %v does not span at least 2 RIRs", c)
		}
	}
}

func TestBuildCohortsRejectsOversizedCohort(t *testing.T) {
	_, err := BuildCohorts(samplePerspectives(), len(samplePerspectives())+1, "secret", "example.com")
	test.AssertError(t, err, "BuildCohorts(oversized)")
}

func TestBuildCohortsRejectsNonPositiveSize(t *testing.T) {
	_, err := BuildCohorts(samplePerspectives(), 0, "secret", "example.com")
	test.AssertError(t, err, "BuildCohorts(zero size)")
}

func TestSeedIsCaseInsensitiveOnTarget(t *testing.T) {
	a := Seed("secret", "Example.COM")
	b := Seed("secret", "example.com")
	test.AssertEquals(t, a, b)
}
