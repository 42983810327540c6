/*
tally.go - Aggregation over the active-ballot set

PURPOSE:
  Every figure a reporting surface shows is derived here, on demand, from
  Ledger.ActiveBallots. Nothing is cached and nothing is written.

DEFINITIONS:
  votes        number of active ballots for a candidate
  totalVotes   (turnout) distinct voters with an active ballot in scope
  totalVoters  (turnout) eligible voters resident in scope
  percentage   count * 100 / sum, rounded half away from zero to 2 places;
               0 for every entry when the sum is 0

  Counts are zero-filled with every candidate standing in the election, so a
  candidate nobody voted for still appears with 0.

SEE ALSO:
  - ledger.go: ActiveBallots iterator
*/
package ballot

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Counts maps each candidate to its number of active ballots.
type Counts map[CandidateID]int

// Total is the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// CandidateCount is one row of a ranked tally.
type CandidateCount struct {
	CandidateID CandidateID
	Votes       int
}

// Ranked orders counts by votes descending, then candidate ID ascending.
func (c Counts) Ranked() []CandidateCount {
	out := make([]CandidateCount, 0, len(c))
	for id, n := range c {
		out = append(out, CandidateCount{CandidateID: id, Votes: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}

// Percentages converts counts into shares of the total.
func Percentages(counts Counts) map[CandidateID]decimal.Decimal {
	total := counts.Total()
	out := make(map[CandidateID]decimal.Decimal, len(counts))
	for id, n := range counts {
		out[id] = percentOf(n, total)
	}
	return out
}

func percentOf(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(whole))).
		Round(2)
}

// =============================================================================
// RESULT TYPES
// =============================================================================

type Turnout struct {
	Scope             Scope
	TotalVoters       int
	TotalVotes        int
	TurnoutPercentage decimal.Decimal
}

// Results is a tally with its percentages, ranked.
type Results struct {
	Scope      Scope
	TotalVotes int
	Candidates []CandidateResult
}

type CandidateResult struct {
	CandidateID CandidateID
	Votes       int
	Percentage  decimal.Decimal
	// Regions is only filled by NationalSummary.
	Regions []RegionCount
}

type RegionCount struct {
	Region string
	Votes  int
}

type NationalSummary struct {
	ElectionID      ElectionID
	TotalCandidates int
	// TotalVoters is the number of distinct voters holding an active ballot.
	TotalVoters       int
	TotalVotes        int
	EligibleVoters    int
	TurnoutPercentage decimal.Decimal
	PerCandidate      []CandidateResult
}

type ZoneTally struct {
	Zone       string
	TotalVotes int
	Counts     Counts
}

// TallyObserver is told how long each aggregation took.
type TallyObserver interface {
	TallyComputed(kind string, elapsed time.Duration)
}

// =============================================================================
// ENGINE
// =============================================================================

// TallyEngine derives aggregates from a Ledger. All methods are pure reads and
// safe for concurrent use.
type TallyEngine struct {
	Ledger     *Ledger
	Voters     VoterDirectory
	Candidates CandidateDirectory
	Observer   TallyObserver
}

func NewTallyEngine(ledger *Ledger, voters VoterDirectory, candidates CandidateDirectory) *TallyEngine {
	return &TallyEngine{Ledger: ledger, Voters: voters, Candidates: candidates}
}

func (t *TallyEngine) observe(kind string, start time.Time) {
	if t.Observer != nil {
		t.Observer.TallyComputed(kind, time.Since(start))
	}
}

// zeroCounts lists every candidate standing in the election with 0 votes.
func (t *TallyEngine) zeroCounts(ctx context.Context, electionID ElectionID) (Counts, error) {
	cands, err := t.Candidates.Candidates(ctx, electionID.Normalize())
	if err != nil {
		return nil, storageError("list candidates", err)
	}
	counts := make(Counts, len(cands))
	for _, c := range cands {
		counts[c.ID] = 0
	}
	return counts, nil
}

// Tally counts active ballots in scope by candidate. An empty scope election
// counts every election and zero-fills with all registered candidates.
func (t *TallyEngine) Tally(ctx context.Context, scope Scope) (Counts, error) {
	defer t.observe("tally", time.Now())

	counts, err := t.zeroCounts(ctx, scope.ElectionID)
	if err != nil {
		return nil, err
	}
	for b, err := range t.Ledger.ActiveBallots(ctx, scope) {
		if err != nil {
			return nil, err
		}
		counts[b.CandidateID]++
	}
	return counts, nil
}

// TallyByCandidate counts the whole election. An empty electionID means
// DefaultElection.
func (t *TallyEngine) TallyByCandidate(ctx context.Context, electionID ElectionID) (Counts, error) {
	return t.Tally(ctx, Scope{ElectionID: electionID.Normalize()})
}

// TallyByRegion counts ballots cast by voters of region (case-insensitive).
func (t *TallyEngine) TallyByRegion(ctx context.Context, electionID ElectionID, region string) (Counts, error) {
	return t.Tally(ctx, Scope{ElectionID: electionID.Normalize(), Region: region})
}

// TallyByZone counts ballots cast by voters of zone (case-insensitive).
func (t *TallyEngine) TallyByZone(ctx context.Context, electionID ElectionID, zone string) (Counts, error) {
	return t.Tally(ctx, Scope{ElectionID: electionID.Normalize(), Zone: zone})
}

// Results is Tally plus percentages, ranked by votes.
func (t *TallyEngine) Results(ctx context.Context, scope Scope) (Results, error) {
	counts, err := t.Tally(ctx, scope)
	if err != nil {
		return Results{}, err
	}
	pct := Percentages(counts)
	res := Results{Scope: scope, TotalVotes: counts.Total()}
	for _, row := range counts.Ranked() {
		res.Candidates = append(res.Candidates, CandidateResult{
			CandidateID: row.CandidateID,
			Votes:       row.Votes,
			Percentage:  pct[row.CandidateID],
		})
	}
	return res, nil
}

// Turnout compares distinct voters with an active ballot in scope against the
// eligible roll of the scope. A voter who retracted and re-cast counts once.
func (t *TallyEngine) Turnout(ctx context.Context, scope Scope) (Turnout, error) {
	defer t.observe("turnout", time.Now())

	eligible, err := t.Voters.CountEligible(ctx, scope)
	if err != nil {
		return Turnout{}, storageError("count eligible voters", err)
	}

	voted := make(map[VoterID]struct{})
	for b, err := range t.Ledger.ActiveBallots(ctx, scope) {
		if err != nil {
			return Turnout{}, err
		}
		voted[b.VoterID] = struct{}{}
	}

	return Turnout{
		Scope:             scope,
		TotalVoters:       eligible,
		TotalVotes:        len(voted),
		TurnoutPercentage: percentOf(len(voted), eligible),
	}, nil
}

// NationalSummary aggregates an election nationwide in one pass, with a
// per-region breakdown for every candidate.
func (t *TallyEngine) NationalSummary(ctx context.Context, electionID ElectionID) (NationalSummary, error) {
	defer t.observe("national_summary", time.Now())
	electionID = electionID.Normalize()

	counts, err := t.zeroCounts(ctx, electionID)
	if err != nil {
		return NationalSummary{}, err
	}

	type regionAgg struct {
		name  string
		votes int
	}
	byRegion := make(map[CandidateID]map[string]*regionAgg)
	voters := make(map[VoterID]struct{})

	for b, err := range t.Ledger.AllActiveBallots(ctx, electionID) {
		if err != nil {
			return NationalSummary{}, err
		}
		counts[b.CandidateID]++
		voters[b.VoterID] = struct{}{}

		regions := byRegion[b.CandidateID]
		if regions == nil {
			regions = make(map[string]*regionAgg)
			byRegion[b.CandidateID] = regions
		}
		key := AreaKey(b.Region)
		agg := regions[key]
		if agg == nil {
			agg = &regionAgg{name: strings.TrimSpace(b.Region)}
			regions[key] = agg
		}
		agg.votes++
	}

	eligible, err := t.Voters.CountEligible(ctx, Scope{})
	if err != nil {
		return NationalSummary{}, storageError("count eligible voters", err)
	}

	pct := Percentages(counts)
	summary := NationalSummary{
		ElectionID:        electionID,
		TotalCandidates:   len(counts),
		TotalVoters:       len(voters),
		TotalVotes:        counts.Total(),
		EligibleVoters:    eligible,
		TurnoutPercentage: percentOf(len(voters), eligible),
	}
	for _, row := range counts.Ranked() {
		regions := make([]RegionCount, 0, len(byRegion[row.CandidateID]))
		for _, agg := range byRegion[row.CandidateID] {
			regions = append(regions, RegionCount{Region: agg.name, Votes: agg.votes})
		}
		sort.Slice(regions, func(i, j int) bool {
			if regions[i].Votes != regions[j].Votes {
				return regions[i].Votes > regions[j].Votes
			}
			return AreaKey(regions[i].Region) < AreaKey(regions[j].Region)
		})
		summary.PerCandidate = append(summary.PerCandidate, CandidateResult{
			CandidateID: row.CandidateID,
			Votes:       row.Votes,
			Percentage:  pct[row.CandidateID],
			Regions:     regions,
		})
	}
	return summary, nil
}

// ZoneBreakdown splits a region's tally by zone. Zones are ordered by name and
// every zone's counts are zero-filled.
func (t *TallyEngine) ZoneBreakdown(ctx context.Context, electionID ElectionID, region string) ([]ZoneTally, error) {
	defer t.observe("zone_breakdown", time.Now())
	electionID = electionID.Normalize()

	base, err := t.zeroCounts(ctx, electionID)
	if err != nil {
		return nil, err
	}

	zones := make(map[string]*ZoneTally)
	for b, err := range t.Ledger.ActiveBallots(ctx, Scope{ElectionID: electionID, Region: region}) {
		if err != nil {
			return nil, err
		}
		key := AreaKey(b.Zone)
		zt := zones[key]
		if zt == nil {
			zt = &ZoneTally{Zone: strings.TrimSpace(b.Zone), Counts: make(Counts, len(base))}
			for id := range base {
				zt.Counts[id] = 0
			}
			zones[key] = zt
		}
		zt.Counts[b.CandidateID]++
		zt.TotalVotes++
	}

	keys := make([]string, 0, len(zones))
	for k := range zones {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ZoneTally, 0, len(keys))
	for _, k := range keys {
		out = append(out, *zones[k])
	}
	return out, nil
}
