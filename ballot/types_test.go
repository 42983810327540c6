package ballot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/ballot-engine/ballot"
)

func TestPrincipal_CanViewZone(t *testing.T) {
	tests := []struct {
		name      string
		principal ballot.Principal
		zone      string
		want      bool
	}{
		{"national admin", ballot.Principal{Role: ballot.RoleNationalAdmin}, "Jimma", true},
		{"regional admin", ballot.Principal{Role: ballot.RoleRegionAdmin, Region: "Oromia"}, "Jimma", true},
		{"regional admin without region", ballot.Principal{Role: ballot.RoleRegionAdmin}, "Jimma", false},
		{"zone admin, own zone", ballot.Principal{Role: ballot.RoleZoneAdmin, Region: "Oromia", Zone: "Jimma"}, "jimma", true},
		{"zone admin, other zone", ballot.Principal{Role: ballot.RoleZoneAdmin, Region: "Oromia", Zone: "Jimma"}, "Adama", false},
		{"zone admin without region", ballot.Principal{Role: ballot.RoleZoneAdmin, Zone: "Jimma"}, "Jimma", false},
		{"voter", ballot.Principal{Role: ballot.RoleVoter, Region: "Oromia", Zone: "Jimma"}, "Jimma", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.principal.CanViewZone(tt.zone))
		})
	}
}

func TestPrincipal_ZoneScope(t *testing.T) {
	oromiaJimma := ballot.Ballot{ElectionID: "electionA", Region: "Oromia", Zone: "Jimma"}

	// GIVEN: a regional admin of Amhara
	amhara := ballot.Principal{Role: ballot.RoleRegionAdmin, Region: "Amhara"}

	// WHEN: the admin scopes a report on zone Jimma
	scope := amhara.ZoneScope("electionA", "Jimma")

	// THEN: the scope keeps the admin's region and excludes Oromia's Jimma
	assert.Equal(t, ballot.Scope{ElectionID: "electionA", Region: "Amhara", Zone: "Jimma"}, scope)
	assert.False(t, scope.Matches(oromiaJimma))

	// AND: national scopes are not narrowed
	national := ballot.Principal{Role: ballot.RoleNationalAdmin, Region: "Amhara"}
	assert.Equal(t, ballot.Scope{ElectionID: "electionA", Zone: "Jimma"}, national.ZoneScope("electionA", "Jimma"))
	assert.True(t, national.ZoneScope("electionA", "Jimma").Matches(oromiaJimma))
}
