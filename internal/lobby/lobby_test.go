// internal/lobby/lobby_test.go
package lobby

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNotifier collects events instead of sending them over WS.
type mockNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockNotifier) Notify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockNotifier) kinds() []EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventKind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

func (m *mockNotifier) last() *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	ev := m.events[len(m.events)-1]
	return &ev
}

func (m *mockNotifier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// recordingJournal keeps every published record.
type recordingJournal struct {
	mu      sync.Mutex
	records []journal.Record
}

func (j *recordingJournal) Publish(rec journal.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
}

func (j *recordingJournal) kinds() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.records))
	for i, r := range j.records {
		out[i] = r.Kind
	}
	return out
}

var testCards = []string{"A", "B", "C", "D"}

// setupLobby creates a lobby hosted by "host" with cards A..D.
func setupLobby(t *testing.T, opts Options) (*Store, *Lobby, *mockNotifier) {
	t.Helper()
	store := NewStore(opts)
	host := &mockNotifier{}
	l, err := store.Create("host", testCards, host)
	require.NoError(t, err)
	return store, l, host
}

// advanceTo walks the lobby forward as the host until it reaches target.
func advanceTo(t *testing.T, l *Lobby, target models.LobbyState) {
	t.Helper()
	for l.State() != target {
		_, err := l.AdvanceStage("host")
		require.NoError(t, err)
	}
}

func TestScenarioSingleWinner(t *testing.T) {
	store, l, host := setupLobby(t, Options{})
	assert.Equal(t, 1, store.Len())
	assert.True(t, ValidID(l.ID))

	alice := &mockNotifier{}
	snap, err := l.Join("alice", alice)
	require.NoError(t, err)
	assert.Equal(t, "host", snap.Host)
	assert.Equal(t, []string{"host"}, snap.Players)
	require.Len(t, snap.Cards, 4)
	assert.Equal(t, models.Card{ID: 0, Description: "A"}, snap.Cards[0])
	assert.Equal(t, models.Card{ID: 3, Description: "D"}, snap.Cards[3])

	require.NotNil(t, host.last())
	assert.Equal(t, Event{Kind: EventUserJoined, Data: "alice"}, *host.last())
	assert.Empty(t, alice.kinds(), "joiner should not be told about itself")

	state, err := l.AdvanceStage("host")
	require.NoError(t, err)
	assert.Equal(t, models.CraftingBoards, state)
	assert.Equal(t, Event{Kind: EventNextStage, Data: models.CraftingBoards}, *alice.last())
	assert.Equal(t, Event{Kind: EventNextStage, Data: models.CraftingBoards}, *host.last())

	require.NoError(t, l.SubmitBoard("alice", []models.CardID{0, 1}))
	assert.Equal(t, Event{Kind: EventBoardSubmitted, Data: "alice"}, *host.last())

	_, err = l.AdvanceStage("host")
	require.NoError(t, err)

	winners, err := l.SubmitAnswer("host", 0)
	require.NoError(t, err)
	assert.Empty(t, winners)
	assert.Equal(t, Event{Kind: EventAnswerSubmitted, Data: models.CardID(0)}, *alice.last())

	winners, err = l.SubmitAnswer("host", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, winners)
	assert.Equal(t, models.Completed, l.State())

	assert.Equal(t, Event{Kind: EventWinnerDetected, Data: []string{"alice"}}, *alice.last())
	assert.Equal(t, Event{Kind: EventWinnerDetected, Data: []string{"alice"}}, *host.last())

	sum := l.Summary()
	assert.Equal(t, []models.CardID{0, 1}, sum.Revealed)
	require.NotNil(t, sum.CurrentAnswer)
	assert.Equal(t, models.CardID(1), *sum.CurrentAnswer)
	assert.Equal(t, []string{"alice"}, sum.Winners)
}

func TestBroadcastOrderMatchesCommitOrder(t *testing.T) {
	_, l, host := setupLobby(t, Options{})
	alice := &mockNotifier{}
	_, err := l.Join("alice", alice)
	require.NoError(t, err)
	_, err = l.Join("bob", &mockNotifier{})
	require.NoError(t, err)

	advanceTo(t, l, models.CraftingBoards)
	require.NoError(t, l.SubmitBoard("bob", []models.CardID{2}))

	assert.Equal(t, []EventKind{EventUserJoined, EventUserJoined, EventNextStage, EventBoardSubmitted}, host.kinds())
	assert.Equal(t, []EventKind{EventUserJoined, EventNextStage, EventBoardSubmitted}, alice.kinds())
}

func TestJoinErrors(t *testing.T) {
	_, l, _ := setupLobby(t, Options{MaxNameLength: 5})

	_, err := l.Join("host", &mockNotifier{})
	assert.ErrorIs(t, err, ErrNameTaken, "host name counts as taken")

	_, err = l.Join("  ", &mockNotifier{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.Join("abcdef", &mockNotifier{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	advanceTo(t, l, models.CraftingBoards)
	_, err = l.Join("late", &mockNotifier{})
	assert.ErrorIs(t, err, ErrLobbyNotJoinable)
	assert.ErrorIs(t, err, ErrWrongStage)
}

func TestConcurrentJoinSameName(t *testing.T) {
	_, l, _ := setupLobby(t, Options{})

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Join("bob", &mockNotifier{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrNameTaken)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, l.Summary().Players, 2)
}

func TestAdvanceStage(t *testing.T) {
	t.Run("non-host is rejected", func(t *testing.T) {
		_, l, host := setupLobby(t, Options{})
		_, err := l.Join("alice", &mockNotifier{})
		require.NoError(t, err)
		host.clear()

		_, err = l.AdvanceStage("alice")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, models.WaitingForPlayers, l.State())
		assert.Empty(t, host.kinds())
	})

	t.Run("stops at completed", func(t *testing.T) {
		_, l, _ := setupLobby(t, Options{})
		advanceTo(t, l, models.Completed)

		state, err := l.AdvanceStage("host")
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, models.Completed, state)
	})

	t.Run("observed states never go backwards", func(t *testing.T) {
		_, l, _ := setupLobby(t, Options{})

		done := make(chan struct{})
		var observed []models.LobbyState
		go func() {
			defer close(done)
			for {
				s := l.State()
				observed = append(observed, s)
				if s == models.Completed {
					return
				}
			}
		}()
		for i := 0; i < 3; i++ {
			_, err := l.AdvanceStage("host")
			require.NoError(t, err)
		}
		<-done

		for i := 1; i < len(observed); i++ {
			assert.GreaterOrEqual(t, observed[i], observed[i-1])
		}
	})
}

func TestSubmitBoard(t *testing.T) {
	_, l, _ := setupLobby(t, Options{})
	_, err := l.Join("alice", &mockNotifier{})
	require.NoError(t, err)

	err = l.SubmitBoard("alice", []models.CardID{0})
	assert.ErrorIs(t, err, ErrWrongStage)

	advanceTo(t, l, models.CraftingBoards)

	err = l.SubmitBoard("ghost", []models.CardID{0})
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	cases := map[string][]models.CardID{
		"empty":     {},
		"unknown":   {0, 9},
		"negative":  {-1},
		"duplicate": {1, 1},
		"too long":  {0, 1, 2, 3, 0},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			err := l.SubmitBoard("alice", ids)
			assert.ErrorIs(t, err, ErrInvalidBoard)
			board, err := l.BoardOf("alice")
			require.NoError(t, err)
			assert.Nil(t, board, "failed submission must not store a board")
		})
	}

	ids := []models.CardID{3, 1}
	require.NoError(t, l.SubmitBoard("alice", ids))
	ids[0] = 0

	board, err := l.BoardOf("alice")
	require.NoError(t, err)
	assert.Equal(t, models.Board{3, 1}, board, "stored board is a copy")

	err = l.SubmitBoard("alice", []models.CardID{2})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	board, _ = l.BoardOf("alice")
	assert.Equal(t, models.Board{3, 1}, board)
}

func TestSubmitAnswer(t *testing.T) {
	_, l, _ := setupLobby(t, Options{})
	_, err := l.Join("alice", &mockNotifier{})
	require.NoError(t, err)

	_, err = l.SubmitAnswer("host", 0)
	assert.ErrorIs(t, err, ErrWrongStage)

	advanceTo(t, l, models.InProgress)

	_, err = l.SubmitAnswer("alice", 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.SubmitAnswer("ghost", 0)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = l.SubmitAnswer("host", 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.SubmitAnswer("host", 2)
	require.NoError(t, err)
	_, err = l.SubmitAnswer("host", 2)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, []models.CardID{2}, l.Summary().Revealed)
}

func TestMultipleWinnersInJoinOrder(t *testing.T) {
	_, l, _ := setupLobby(t, Options{})
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := l.Join(name, &mockNotifier{})
		require.NoError(t, err)
	}
	advanceTo(t, l, models.CraftingBoards)
	require.NoError(t, l.SubmitBoard("carol", []models.CardID{0}))
	require.NoError(t, l.SubmitBoard("alice", []models.CardID{0}))
	require.NoError(t, l.SubmitBoard("bob", []models.CardID{1}))
	advanceTo(t, l, models.InProgress)

	winners, err := l.SubmitAnswer("host", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "alice"}, winners)
	assert.Equal(t, models.Completed, l.State())

	_, err = l.SubmitAnswer("host", 1)
	assert.ErrorIs(t, err, ErrWrongStage)
}

func TestConcurrentAnswersAreSerialized(t *testing.T) {
	cards := make([]string, 64)
	for i := range cards {
		cards[i] = fmt.Sprintf("card-%d", i)
	}
	store := NewStore(Options{})
	l, err := store.Create("host", cards, &mockNotifier{})
	require.NoError(t, err)

	alice := &mockNotifier{}
	_, err = l.Join("alice", alice)
	require.NoError(t, err)
	advanceTo(t, l, models.InProgress)
	alice.clear()

	var wg sync.WaitGroup
	for i := range cards {
		wg.Add(1)
		go func(id models.CardID) {
			defer wg.Done()
			_, err := l.SubmitAnswer("host", id)
			assert.NoError(t, err)
		}(models.CardID(i))
	}
	wg.Wait()

	revealed := l.Summary().Revealed
	require.Len(t, revealed, len(cards))

	// alice must see answers in exactly the order they were committed
	alice.mu.Lock()
	defer alice.mu.Unlock()
	require.Len(t, alice.events, len(cards))
	for i, ev := range alice.events {
		assert.Equal(t, EventAnswerSubmitted, ev.Kind)
		assert.Equal(t, revealed[i], ev.Data)
	}
}

func TestRemovePlayer(t *testing.T) {
	t.Run("regular player", func(t *testing.T) {
		_, l, host := setupLobby(t, Options{})
		_, err := l.Join("alice", &mockNotifier{})
		require.NoError(t, err)

		closed, err := l.RemovePlayer("alice")
		require.NoError(t, err)
		assert.False(t, closed)
		assert.Equal(t, Event{Kind: EventUserLeft, Data: "alice"}, *host.last())

		_, err = l.RemovePlayer("alice")
		assert.ErrorIs(t, err, ErrPlayerNotFound)

		// the name is free again
		_, err = l.Join("alice", &mockNotifier{})
		assert.NoError(t, err)
	})

	t.Run("host closes the lobby", func(t *testing.T) {
		store, l, _ := setupLobby(t, Options{})
		alice := &mockNotifier{}
		_, err := l.Join("alice", alice)
		require.NoError(t, err)

		closed, err := l.RemovePlayer("host")
		require.NoError(t, err)
		assert.True(t, closed)
		assert.True(t, l.Closed())
		assert.Equal(t, EventLobbyClosed, alice.last().Kind)

		_, err = store.Get(l.ID)
		assert.ErrorIs(t, err, ErrLobbyNotFound)
		assert.Equal(t, 0, store.Len())

		_, err = l.Join("bob", &mockNotifier{})
		assert.ErrorIs(t, err, ErrLobbyClosed)
		_, err = l.AdvanceStage("host")
		assert.ErrorIs(t, err, ErrLobbyClosed)
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	store, l, host := setupLobby(t, Options{})
	l.Close("shutdown")
	l.Close("shutdown")

	assert.Equal(t, []EventKind{EventLobbyClosed}, host.kinds())
	assert.Equal(t, 0, store.Len())
}

func TestJournalRecordsLifecycle(t *testing.T) {
	j := &recordingJournal{}
	_, l, _ := setupLobby(t, Options{Journal: j})
	_, err := l.Join("alice", &mockNotifier{})
	require.NoError(t, err)
	advanceTo(t, l, models.CraftingBoards)
	require.NoError(t, l.SubmitBoard("alice", []models.CardID{0}))
	advanceTo(t, l, models.InProgress)
	_, err = l.SubmitAnswer("host", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lobbyCreated", "userJoined", "nextStage", "boardSubmitted",
		"nextStage", "answerSubmitted", "winnerDetected",
	}, j.kinds())

	j.mu.Lock()
	defer j.mu.Unlock()
	for i, rec := range j.records {
		assert.Equal(t, l.ID, rec.LobbyID)
		assert.Equal(t, i+1, rec.Seq)
	}
}

func TestLastActivityFollowsClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	_, l, _ := setupLobby(t, Options{Clock: clock})
	assert.Equal(t, now, l.LastActivity())

	now = now.Add(time.Minute)
	_, err := l.Join("alice", &mockNotifier{})
	require.NoError(t, err)
	assert.Equal(t, now, l.LastActivity())

	// failed operations do not count as activity
	now = now.Add(time.Minute)
	_, err = l.AdvanceStage("alice")
	require.Error(t, err)
	assert.Equal(t, now.Add(-time.Minute), l.LastActivity())
}
