package server_test

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/cyvasse-online/server/internal/idgen"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/rules"
	"github.com/cyvasse-online/server/pkg/server"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *server.Registry {
	t.Helper()
	return server.NewRegistry(idgen.New())
}

func hostOptions(t *testing.T, color domain.Color) server.HostOptions {
	t.Helper()
	game, err := rules.New(domain.RuleSetMikeLePage)
	require.NoError(t, err)
	return server.HostOptions{RuleSet: domain.RuleSetMikeLePage, Game: game, Color: color}
}

func connected(r *server.Registry) *fakeConn {
	c := newFakeConn()
	r.Connect(c)
	return c
}

func TestRegistry_JoinGetsComplementaryColor(t *testing.T) {
	for _, hostColor := range []domain.Color{domain.White, domain.Black} {
		t.Run(hostColor.String(), func(t *testing.T) {
			r := newRegistry(t)
			a, b := connected(r), connected(r)

			host, err := r.Host(a.ID(), hostOptions(t, hostColor))
			require.NoError(t, err)
			assert.Empty(t, host.Peers)

			join, err := r.Join(b.ID(), host.Match.ID)
			require.NoError(t, err)

			assert.Equal(t, hostColor.Opposite(), join.Session.Color)
			assert.Equal(t, domain.RuleSetMikeLePage, join.Match.RuleSet)
			assert.NotEqual(t, host.Session.PlayerID, join.Session.PlayerID)
			require.Len(t, join.Peers, 1)
			assert.Equal(t, a.ID(), join.Peers[0].Session.Conn)
			assert.True(t, join.Match.Full())
		})
	}
}

func TestRegistry_JoinUnknownMatchLeavesStateUntouched(t *testing.T) {
	r := newRegistry(t)
	a, b := connected(r), connected(r)
	_, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)

	conns, matches, sessions := r.Counts()

	_, err = r.Join(b.ID(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrGameNotFound))
	assert.Equal(t, protocol.CodeGameNotFound, errors.CodeOf(err))

	c2, m2, s2 := r.Counts()
	assert.Equal(t, []int{conns, matches, sessions}, []int{c2, m2, s2})
	_, attached := r.LookupSession(b.ID())
	assert.False(t, attached)
}

func TestRegistry_AdmissionErrors(t *testing.T) {
	r := newRegistry(t)
	a, b, c := connected(r), connected(r), connected(r)

	host, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)

	_, err = r.Host(a.ID(), hostOptions(t, domain.Black))
	assert.True(t, errors.Is(err, protocol.ErrConnInUse), "second create on the same connection")

	_, err = r.Join(a.ID(), host.Match.ID)
	assert.True(t, errors.Is(err, protocol.ErrConnInUse), "join while attached")

	_, err = r.Join(b.ID(), host.Match.ID)
	require.NoError(t, err)

	_, err = r.Join(c.ID(), host.Match.ID)
	assert.True(t, errors.Is(err, protocol.ErrGameFull))

	// connInUse wins over every match-related error.
	_, err = r.Join(b.ID(), "ZZZZ")
	assert.True(t, errors.Is(err, protocol.ErrConnInUse))
}

func TestRegistry_JoinAfterSoleSessionLeftIsEmpty(t *testing.T) {
	r := newRegistry(t)
	a, b := connected(r), connected(r)

	host, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)

	det, ok := r.RemoveSession(a.ID())
	require.True(t, ok)
	assert.True(t, det.Empty)

	_, err = r.Join(b.ID(), host.Match.ID)
	assert.True(t, errors.Is(err, protocol.ErrGameEmpty))

	require.True(t, r.DestroyMatch(host.Match.ID))
	_, err = r.Join(b.ID(), host.Match.ID)
	assert.True(t, errors.Is(err, protocol.ErrGameNotFound))
}

func TestRegistry_JoinWhileSoleSessionDisconnectsIsEmpty(t *testing.T) {
	r := newRegistry(t)
	a, b := connected(r), connected(r)

	host, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)

	// The host's connection is gone but its session has not been removed yet.
	require.True(t, r.Disconnect(a.ID()))

	_, err = r.Join(b.ID(), host.Match.ID)
	assert.True(t, errors.Is(err, protocol.ErrGameEmpty), "got %v", err)

	view, ok := r.Match(host.Match.ID)
	require.True(t, ok)
	assert.Len(t, view.Sessions, 1)
	_, attached := r.LookupSession(b.ID())
	assert.False(t, attached)
}

func TestRegistry_CreateMatchIsEmpty(t *testing.T) {
	r := newRegistry(t)
	b := connected(r)

	id := r.CreateMatch(hostOptions(t, domain.White))
	view, ok := r.Match(id)
	require.True(t, ok)
	assert.Empty(t, view.Sessions)

	_, err := r.Join(b.ID(), id)
	assert.True(t, errors.Is(err, protocol.ErrGameEmpty))
	assert.True(t, r.DestroyMatch(id))
}

func TestRegistry_RemoveSessionIsIdempotent(t *testing.T) {
	r := newRegistry(t)
	a, b := connected(r), connected(r)

	host, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)
	_, err = r.Join(b.ID(), host.Match.ID)
	require.NoError(t, err)

	det, ok := r.RemoveSession(b.ID())
	require.True(t, ok)
	assert.False(t, det.Empty)
	require.Len(t, det.Peers, 1)
	assert.Equal(t, a.ID(), det.Peers[0].Session.Conn)

	_, ok = r.RemoveSession(b.ID())
	assert.False(t, ok)

	assert.False(t, r.DestroyMatch(host.Match.ID), "match still has a session")
	_, _, sessions := r.Counts()
	assert.Equal(t, 1, sessions)
}

func TestRegistry_ClosedConnectionIsNotAdmitted(t *testing.T) {
	r := newRegistry(t)
	a := connected(r)
	require.True(t, r.Disconnect(a.ID()))
	assert.False(t, r.Disconnect(a.ID()))

	_, err := r.Host(a.ID(), hostOptions(t, domain.White))
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)

	_, matches, _ := r.Counts()
	assert.Zero(t, matches)
}

func TestRegistry_MatchIDCollisionIsRetried(t *testing.T) {
	random := func(n int) string { return strings.Repeat("q", n) }
	ids := idgen.NewWithRandom(idgen.Sequence(random,
		"AAAA", "player01", // first match and its creator
		"AAAA", "BBBB",     // second match collides once
	))
	r := server.NewRegistry(ids)

	a, b := connected(r), connected(r)
	first, err := r.Host(a.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)
	assert.Equal(t, "AAAA", first.Match.ID)

	second, err := r.Host(b.ID(), hostOptions(t, domain.White))
	require.NoError(t, err)
	assert.Equal(t, "BBBB", second.Match.ID)
}

func TestRegistry_ResumeReclaimsSeat(t *testing.T) {
	r := newRegistry(t)
	a, b, c, d := connected(r), connected(r), connected(r), connected(r)

	host, err := r.Host(a.ID(), hostOptions(t, domain.Black))
	require.NoError(t, err)
	join, err := r.Join(b.ID(), host.Match.ID)
	require.NoError(t, err)

	_, err = r.SetUsername(b.ID(), "bob")
	require.NoError(t, err)

	_, err = r.Resume(c.ID(), join.Session.PlayerID)
	assert.True(t, errors.Is(err, protocol.ErrGameFull), "seat still occupied")

	_, ok := r.RemoveSession(b.ID())
	require.True(t, ok)

	resumed, err := r.Resume(c.ID(), join.Session.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, domain.White, resumed.Session.Color)
	assert.Equal(t, join.Session.PlayerID, resumed.Session.PlayerID)
	assert.Equal(t, "bob", resumed.Session.Username)
	require.Len(t, resumed.Peers, 1)

	_, err = r.Resume(d.ID(), "nobody00")
	assert.True(t, errors.Is(err, protocol.ErrGameNotFound))
}

func TestRegistry_SetUsernameRequiresMatch(t *testing.T) {
	r := newRegistry(t)
	a := connected(r)

	_, err := r.SetUsername(a.ID(), "alice")
	assert.True(t, errors.Is(err, protocol.ErrNotInMatch))

	_, _, _, err = r.Peers(a.ID())
	assert.True(t, errors.Is(err, protocol.ErrNotInMatch))
}

// Random interleavings of create, join and leave across many goroutines
// must never put more than two sessions in a match or more than one
// session on a connection.
func TestRegistry_ConcurrentAdmissionInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	r := newRegistry(t)

	const (
		workers = 16
		steps   = 300
		nConns  = 24
	)

	conns := make([]*fakeConn, nConns)
	for i := range conns {
		conns[i] = connected(r)
	}

	var (
		mu       sync.Mutex
		matchIDs []string
	)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 42))

			for range steps {
				c := conns[rng.IntN(nConns)]
				switch rng.IntN(3) {
				case 0:
					adm, err := r.Host(c.ID(), hostOptions(t, domain.Color(rng.IntN(2))))
					if err == nil {
						mu.Lock()
						matchIDs = append(matchIDs, adm.Match.ID)
						mu.Unlock()
					}
				case 1:
					mu.Lock()
					var id string
					if len(matchIDs) > 0 {
						id = matchIDs[rng.IntN(len(matchIDs))]
					}
					mu.Unlock()
					if _, err := r.Join(c.ID(), id); err == nil {
						sess, ok := r.LookupSession(c.ID())
						assert.True(t, ok)
						assert.Equal(t, id, sess.MatchID)
					}
				case 2:
					if det, ok := r.RemoveSession(c.ID()); ok && det.Empty {
						r.DestroyMatch(det.Match.ID)
					}
				}

				mu.Lock()
				ids := append([]string(nil), matchIDs...)
				mu.Unlock()
				for _, id := range ids {
					if view, ok := r.Match(id); ok {
						assert.LessOrEqual(t, len(view.Sessions), server.MaxPlayers)
					}
				}
			}
		}()
	}
	wg.Wait()

	perConn := make(map[domain.ConnID]int)
	mu.Lock()
	defer mu.Unlock()
	for _, id := range matchIDs {
		view, ok := r.Match(id)
		if !ok {
			continue
		}
		require.LessOrEqual(t, len(view.Sessions), server.MaxPlayers)
		if len(view.Sessions) == 2 {
			assert.NotEqual(t, view.Sessions[0].Color, view.Sessions[1].Color)
		}
		for _, s := range view.Sessions {
			perConn[s.Conn]++
		}
	}
	for conn, n := range perConn {
		assert.Equal(t, 1, n, "connection %s holds %d sessions", conn, n)
	}

	_, _, sessions := r.Counts()
	assert.Equal(t, len(perConn), sessions)
}
