package reconcile

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

// View is an immutable snapshot of everything the reconciler knows.
// Readers obtain it through Reconciler.Snapshot and may keep it as long as
// they like; writers always publish a new View.
type View struct {
	userID      shared.UserID
	memberships []challenge.Membership
	index       map[shared.ChallengeID]int
	records     map[checkin.Key]checkin.Record
	digest      [blake2b.Size256]byte
	syncedAt    time.Time
}

func emptyView(userID shared.UserID) *View {
	return (&View{userID: userID}).seal()
}

// newView assembles a view from a full server fetch. Challenge records come
// first and the user's own records override them on the same key.
func newView(userID shared.UserID, memberships []challenge.Membership, challengeRecords [][]checkin.Record, own []checkin.Record, at time.Time) *View {
	v := &View{
		userID:   userID,
		records:  make(map[checkin.Key]checkin.Record),
		syncedAt: at,
	}
	for _, m := range memberships {
		if m.Challenge != nil {
			v.memberships = append(v.memberships, m)
		}
	}
	for _, rs := range challengeRecords {
		for _, r := range rs {
			v.records[r.Key()] = r
		}
	}
	for _, r := range own {
		v.records[r.Key()] = r
	}
	return v.seal()
}

func (v *View) copy() *View {
	n := &View{
		userID:      v.userID,
		memberships: slices.Clone(v.memberships),
		index:       maps.Clone(v.index),
		records:     maps.Clone(v.records),
		syncedAt:    v.syncedAt,
	}
	if n.index == nil {
		n.index = make(map[shared.ChallengeID]int)
	}
	if n.records == nil {
		n.records = make(map[checkin.Key]checkin.Record)
	}
	return n
}

// seal rebuilds the index and digest. It must be the last call before publishing.
func (v *View) seal() *View {
	v.index = make(map[shared.ChallengeID]int, len(v.memberships))
	for i, m := range v.memberships {
		v.index[m.Challenge.ID] = i
	}
	v.digest = v.computeDigest()
	return v
}

// computeDigest hashes the observable content: challenge fields, the user's
// participation and record completion state. Record ids and update
// timestamps are left out.
func (v *View) computeDigest() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)

	ms := slices.Clone(v.memberships)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Challenge.ID < ms[j].Challenge.ID })
	for _, m := range ms {
		c := m.Challenge
		fmt.Fprintf(h, "c|%s|%s|%s|%s|%s|%d|%d|%t|%t|%d|%d\n",
			c.ID, c.Title, c.Description, c.OwnerID, c.InviteCode, c.CreatedAt.UnixNano(),
			c.DurationDays, c.IsPrivate, c.IsLongTerm, c.PointsConfig.PerCheck, c.PointsConfig.PerNudge)
		if p := m.Participant; p != nil && p.CompletedAt != nil {
			fmt.Fprintf(h, "p|%s|%d\n", c.ID, p.CompletedAt.UnixNano())
		}
	}

	keys := slices.Collect(maps.Keys(v.records))
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	for _, k := range keys {
		fmt.Fprintf(h, "r|%s|%s|%s|%t\n", k.UserID, k.ChallengeID, k.Date, v.records[k].Completed)
	}

	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func lessKey(a, b checkin.Key) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.ChallengeID != b.ChallengeID {
		return a.ChallengeID < b.ChallengeID
	}
	return a.UserID < b.UserID
}

func (v *View) putMembership(m challenge.Membership) {
	if i, ok := v.index[m.Challenge.ID]; ok {
		v.memberships[i] = m
		return
	}
	v.memberships = append(v.memberships, m)
	v.index[m.Challenge.ID] = len(v.memberships) - 1
}

// removeChallenge drops the membership and every record of the challenge.
// It returns what was removed so the caller can put it back.
func (v *View) removeChallenge(id shared.ChallengeID) (challenge.Membership, bool, []checkin.Record) {
	var removed []checkin.Record
	for k, r := range v.records {
		if k.ChallengeID == id {
			removed = append(removed, r)
			delete(v.records, k)
		}
	}

	i, ok := v.index[id]
	if !ok {
		return challenge.Membership{}, false, removed
	}
	m := v.memberships[i]
	v.memberships = slices.Delete(v.memberships, i, i+1)
	delete(v.index, id)
	for j := i; j < len(v.memberships); j++ {
		v.index[v.memberships[j].Challenge.ID] = j
	}
	return m, true, removed
}

// ═══════════════════════════════════════════════════════════════════════════
// Queries. None of them fail: unknown ids yield empty results.
// ═══════════════════════════════════════════════════════════════════════════

// UserID returns the owner of the view.
func (v *View) UserID() shared.UserID { return v.userID }

// SyncedAt returns when the view was last assembled from the server.
func (v *View) SyncedAt() time.Time { return v.syncedAt }

// Digest returns the content hash used to detect no-op syncs.
func (v *View) Digest() [blake2b.Size256]byte { return v.digest }

// Challenge returns the membership for id.
func (v *View) Challenge(id shared.ChallengeID) (challenge.Membership, bool) {
	i, ok := v.index[id]
	if !ok {
		return challenge.Membership{}, false
	}
	return v.memberships[i], true
}

// Challenges returns all memberships in server order.
func (v *View) Challenges() []challenge.Membership {
	return slices.Clone(v.memberships)
}

// Record returns the record stored under k.
func (v *View) Record(k checkin.Key) (checkin.Record, bool) {
	r, ok := v.records[k]
	return r, ok
}

// Records returns every known record of a challenge, sorted by date.
func (v *View) Records(challengeID shared.ChallengeID) []checkin.Record {
	out := make([]checkin.Record, 0)
	for k, r := range v.records {
		if k.ChallengeID == challengeID {
			out = append(out, r)
		}
	}
	checkin.SortByDate(out)
	return out
}

// UserRecords returns the view owner's records, sorted by date.
func (v *View) UserRecords() []checkin.Record {
	out := make([]checkin.Record, 0)
	for k, r := range v.records {
		if k.UserID == v.userID {
			out = append(out, r)
		}
	}
	checkin.SortByDate(out)
	return out
}

// Streak is the owner's global streak.
func (v *View) Streak(today shared.Date) int {
	challenges := make([]*challenge.Challenge, 0, len(v.memberships))
	for _, m := range v.memberships {
		challenges = append(challenges, m.Challenge)
	}
	return gamification.GlobalStreak(v.UserRecords(), challenges, today)
}

// Points is the owner's total across all memberships.
func (v *View) Points(rewards gamification.Rewards) int {
	return gamification.TotalPoints(gamification.Tallies(v.memberships, v.UserRecords()), rewards)
}

// Ranking builds an approximate challenge ranking from the records the view
// holds. The participant set is the owner, every user in users and every
// author of a record. Members without records are missing, and long-term
// completions of other users are unknown, so their rank and bonus can be
// wrong. Reconciler.Ranking returns the exact one. An unknown challenge
// yields an empty ranking.
func (v *View) Ranking(challengeID shared.ChallengeID, users map[shared.UserID]*user.User, today shared.Date, rewards gamification.Rewards) *leaderboard.Ranking {
	m, ok := v.Challenge(challengeID)
	if !ok {
		return leaderboard.NewRanking(challengeID, false)
	}

	records := v.Records(challengeID)
	seen := map[shared.UserID]bool{v.userID: true}
	participants := []*challenge.Participant{participantOf(m, v.userID)}
	add := func(id shared.UserID) {
		if !seen[id] {
			seen[id] = true
			participants = append(participants, &challenge.Participant{UserID: id, ChallengeID: challengeID})
		}
	}
	for id := range users {
		add(id)
	}
	for _, r := range records {
		add(r.UserID)
	}

	return leaderboard.Build(leaderboard.BuildInput{
		Challenge:    m.Challenge,
		Participants: participants,
		Records:      records,
		Users:        users,
		Today:        today,
		Rewards:      rewards,
	})
}

func participantOf(m challenge.Membership, userID shared.UserID) *challenge.Participant {
	if m.Participant != nil {
		return m.Participant
	}
	return &challenge.Participant{UserID: userID, ChallengeID: m.Challenge.ID}
}
