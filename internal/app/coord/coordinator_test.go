package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stagekit/stagecast/internal/app/alerts"
	"github.com/stagekit/stagecast/internal/app/feed"
	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/app/votes"
	"github.com/stagekit/stagecast/internal/config"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

// recorder keeps a shared, ordered log of collaborator calls so tests
// can assert cross-collaborator ordering.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) index(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeDirectory struct {
	rec *recorder

	mu             sync.Mutex
	joins          int
	joinEntered    chan struct{}
	joinGate       chan struct{}
	joinToken      *domain.ParticipantToken
	listing        []core.StageDetails
	lists          int
	lastOnlyActive bool
	seatsPushed    [][]string
	modesPushed    []domain.StageMode
	disconnected   []string
}

func (d *fakeDirectory) Verify(context.Context) error { return nil }

func (d *fakeDirectory) ListStages(_ context.Context, onlyActive bool) ([]core.StageDetails, error) {
	d.mu.Lock()
	d.lists++
	d.lastOnlyActive = onlyActive
	listing := d.listing
	d.mu.Unlock()
	d.rec.add("dir.list")
	return listing, nil
}

func (d *fakeDirectory) CreateStage(context.Context, core.CreateStageRequest) (*domain.HostToken, error) {
	d.rec.add("dir.createStage")
	return &domain.HostToken{TokenData: domain.TokenData{Token: "host-tok", ParticipantID: "p-local"}}, nil
}

func (d *fakeDirectory) Join(context.Context, domain.HostID, core.JoinRequest) (*domain.ParticipantToken, error) {
	d.mu.Lock()
	d.joins++
	d.mu.Unlock()
	d.rec.add("dir.join")
	if d.joinEntered != nil {
		d.joinEntered <- struct{}{}
	}
	if d.joinGate != nil {
		<-d.joinGate
	}
	return d.joinToken, nil
}

func (d *fakeDirectory) UpdateMode(_ context.Context, _ domain.HostID, _ domain.UserID, mode domain.StageMode) error {
	d.mu.Lock()
	d.modesPushed = append(d.modesPushed, mode)
	d.mu.Unlock()
	d.rec.add("dir.updateMode")
	return nil
}

func (d *fakeDirectory) UpdateSeats(_ context.Context, _ domain.HostID, _ domain.UserID, seats []string) error {
	d.mu.Lock()
	d.seatsPushed = append(d.seatsPushed, append([]string(nil), seats...))
	d.mu.Unlock()
	d.rec.add("dir.updateSeats")
	return nil
}

func (d *fakeDirectory) CastVote(context.Context, domain.HostID, domain.UserID) error {
	d.rec.add("dir.castVote")
	return nil
}

func (d *fakeDirectory) DeleteStage(context.Context, domain.HostID) error {
	d.rec.add("dir.deleteStage")
	return nil
}

func (d *fakeDirectory) DisconnectParticipant(_ context.Context, _ domain.HostID, userID domain.UserID, participantID domain.ParticipantID) error {
	d.mu.Lock()
	d.disconnected = append(d.disconnected, string(userID)+"/"+string(participantID))
	d.mu.Unlock()
	d.rec.add("dir.disconnect")
	return nil
}

func (d *fakeDirectory) CreateChatToken(context.Context, core.ChatTokenRequest) (*domain.ChatToken, error) {
	d.rec.add("dir.chatToken")
	return &domain.ChatToken{Token: "chat-tok"}, nil
}

type fakeMedia struct {
	rec      *recorder
	strategy core.StrategyFunc
	events   chan core.MediaEvent
}

func (m *fakeMedia) SetStrategy(fn core.StrategyFunc) { m.strategy = fn }

func (m *fakeMedia) Join(string, core.ParticipantInfo) error {
	m.rec.add("media.join")
	return nil
}

func (m *fakeMedia) Leave()                         { m.rec.add("media.leave") }
func (m *fakeMedia) RefreshStrategy()               {}
func (m *fakeMedia) Events() <-chan core.MediaEvent { return m.events }

type fakeChat struct {
	rec    *recorder
	events chan core.ChatEvent
}

func (ch *fakeChat) Connect(context.Context, domain.ChatToken) error {
	ch.rec.add("chat.connect")
	return nil
}

func (ch *fakeChat) Disconnect()                     { ch.rec.add("chat.disconnect") }
func (ch *fakeChat) SendMessage(string) error        { return nil }
func (ch *fakeChat) SendReaction(string) error       { return nil }
func (ch *fakeChat) Events() <-chan core.ChatEvent   { return ch.events }

func testConfig() *config.Config {
	return &config.Config{
		CustomerCode:     "abc123",
		APIKey:           "key",
		APIHost:          "cloudfront.net",
		PollInterval:     time.Hour,
		RequestTimeout:   2 * time.Second,
		ChatTokenTimeout: time.Second,
		ErrorTTL:         10 * time.Second,
		ScrollCooldown:   time.Second,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recorder, *fakeDirectory) {
	t.Helper()
	rec := &recorder{}
	dir := &fakeDirectory{rec: rec}
	media := &fakeMedia{rec: rec, events: make(chan core.MediaEvent, 8)}
	chat := &fakeChat{rec: rec, events: make(chan core.ChatEvent, 8)}

	local, err := domain.NewLocalParticipant("me", domain.RandomAvatar())
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	c := New(cfg, dir, media, chat,
		feed.New(cfg.ScrollCooldown), roster.New(local), votes.New(), alerts.New(cfg.ErrorTTL), local)
	return c, rec, dir
}

// step executes the next completion posted to the loop. The loop is not
// running in these tests, so sequencing is fully deterministic.
func step(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case fn := <-c.inbox:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion posted to the loop")
	}
}

func videoStage(id string, host string) *domain.Stage {
	return domain.NewStage(id, "arn:"+id, domain.HostID(host), domain.StageVideo, domain.ModeNone, "ACTIVE", id, nil)
}

func TestJoinGuardSingleFlight(t *testing.T) {
	c, _, dir := newTestCoordinator(t)
	c.autoJoin = true
	dir.joinEntered = make(chan struct{}, 2)
	dir.joinGate = make(chan struct{})
	dir.joinToken = &domain.ParticipantToken{
		Token:          "tok",
		ParticipantID:  "p-local",
		HostAttributes: map[string]string{domain.AttrUsername: "alice"},
	}

	stage := videoStage("s1", "alice")
	c.join(stage)
	<-dir.joinEntered

	// A second request while the exchange is pending must not start
	// another one.
	c.join(stage)

	dir.mu.Lock()
	joins := dir.joins
	dir.mu.Unlock()
	if joins != 1 {
		t.Fatalf("joins = %d, want 1", joins)
	}

	close(dir.joinGate)
	step(t, c) // finishJoin

	if c.state != StateJoinedViewing {
		t.Fatalf("state = %s", c.state)
	}
	if !c.local.IsInStage() {
		t.Fatal("participant token not recorded")
	}
	if !stage.Joined {
		t.Fatal("stage not flagged joined")
	}
	if c.hostUsername != "alice" {
		t.Fatalf("host username = %q", c.hostUsername)
	}
}

func TestStaleJoinResultDiscarded(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	c.active = videoStage("s2", "bob")
	c.joinInProgress = true

	tok := &domain.ParticipantToken{Token: "tok", ParticipantID: "p-x"}
	c.finishJoin("s1", tok, nil)

	if c.joinInProgress {
		t.Fatal("guard must clear even for stale results")
	}
	if c.local.IsInStage() {
		t.Fatal("stale token must not be recorded")
	}
	if rec.index("media.join") != -1 {
		t.Fatal("stale result must not touch the media session")
	}
}

func TestHostLeaveOrdering(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.HostToken = &domain.HostToken{TokenData: domain.TokenData{Token: "t", ParticipantID: "p-local"}}
		p.ParticipantID = "p-local"
		p.OnStage = true
	})
	c.active = videoStage("s1", "me")
	c.state = StateJoinedPublishing

	var finished bool
	c.leave(func() { finished = true })
	step(t, c) // delete completion

	if !finished {
		t.Fatal("leave completion not delivered")
	}
	chat, media, del := rec.index("chat.disconnect"), rec.index("media.leave"), rec.index("dir.deleteStage")
	if chat == -1 || media == -1 || del == -1 {
		t.Fatalf("missing teardown calls: %v", rec.calls)
	}
	if !(chat < media && media < del) {
		t.Fatalf("teardown order = %v", rec.calls)
	}
	if c.state != StateIdle || c.active != nil {
		t.Fatalf("state = %s, active = %v", c.state, c.active)
	}
	if c.local.IsHost() {
		t.Fatal("host token must be dropped")
	}
}

func TestAudioSeatPublish(t *testing.T) {
	c, _, dir := newTestCoordinator(t)
	stage := domain.NewStage("s1", "arn", "alice", domain.StageAudio, domain.ModeNone, "ACTIVE", "s1", nil)
	c.active = stage
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.ParticipantID = "p-local"
		p.ParticipantToken = &domain.ParticipantToken{Token: "tok", ParticipantID: "p-local"}
	})

	c.publishAudioSeat(0)
	step(t, c) // seats push completion

	if stage.AudioSeats[0] != "p-local" {
		t.Fatalf("seat 0 = %q", stage.AudioSeats[0])
	}
	if c.state != StateJoinedPublishing || !c.wantsPublish.Load() {
		t.Fatalf("state = %s, wantsPublish = %v", c.state, c.wantsPublish.Load())
	}
	if c.local.SeatIndex == nil || *c.local.SeatIndex != 0 {
		t.Fatal("seat index not recorded")
	}
	if !c.local.WantsAudioOnly {
		t.Fatal("audio stage publish must cap the local subscription")
	}

	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.seatsPushed) != 1 {
		t.Fatalf("seat pushes = %d, want 1", len(dir.seatsPushed))
	}
	pushed := dir.seatsPushed[0]
	if len(pushed) != domain.AudioSeatCount {
		t.Fatalf("pushed %d seats, want %d", len(pushed), domain.AudioSeatCount)
	}
	if pushed[0] != "p-local" {
		t.Fatalf("pushed[0] = %q", pushed[0])
	}
	for i := 1; i < len(pushed); i++ {
		if pushed[i] != "" {
			t.Fatalf("seat %d = %q, want vacant", i, pushed[i])
		}
	}
}

func TestModeNoneForcesUnpublish(t *testing.T) {
	c, _, dir := newTestCoordinator(t)
	stage := videoStage("s1", "alice")
	stage.Mode = domain.ModePK
	c.active = stage
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.ParticipantID = "p-local"
		p.ParticipantToken = &domain.ParticipantToken{Token: "tok", ParticipantID: "p-local"}
		p.OnStage = true
	})
	c.wantsPublish.Store(true)
	c.state = StateJoinedPublishing

	c.handleChatEvent(core.ChatEvent{
		Kind:       core.ChatModeChanged,
		Attributes: map[string]string{"mode": "NONE"},
	})
	step(t, c) // update-mode completion from the forced unpublish

	if c.local.OnStage {
		t.Fatal("local must step off stage on NONE")
	}
	if c.wantsPublish.Load() {
		t.Fatal("publish intent must drop")
	}
	if c.state != StateJoinedViewing {
		t.Fatalf("state = %s", c.state)
	}
	if stage.Mode != domain.ModeNone {
		t.Fatalf("stage mode = %s", stage.Mode)
	}
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.modesPushed) != 1 || dir.modesPushed[0] != domain.ModeNone {
		t.Fatalf("modes pushed = %v", dir.modesPushed)
	}
}

func TestVoteEventMergesThroughSlots(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.hostSlot = &slot{id: "p-a", username: "alice"}
	c.secondSlot = &slot{id: "p-b", username: "bob"}
	c.votes.Start(time.Now())

	c.handleChatEvent(core.ChatEvent{
		Kind:       core.ChatVotesChanged,
		Attributes: map[string]string{"alice": "5", "bob": "3"},
	})

	host, second := c.votes.Counts()
	if host != 5 || second != 3 {
		t.Fatalf("counts = %d/%d, want 5/3", host, second)
	}
}

func TestHostPollListsAllStages(t *testing.T) {
	c, _, dir := newTestCoordinator(t)
	c.autoJoin = true
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.HostToken = &domain.HostToken{TokenData: domain.TokenData{Token: "t", ParticipantID: "p-local"}}
		p.ParticipantID = "p-local"
	})
	dir.listing = []core.StageDetails{
		{CreatedAt: "t1", HostID: "me", Type: domain.StageVideo, Mode: domain.ModeNone, Status: "ACTIVE"},
	}

	// A tick arriving while a poll is in flight is skipped outright.
	c.pollInFlight = true
	c.pollDirectory()
	dir.mu.Lock()
	if dir.lists != 0 {
		dir.mu.Unlock()
		t.Fatal("overlapping poll must be skipped")
	}
	dir.mu.Unlock()

	c.pollInFlight = false
	c.pollDirectory()
	step(t, c)

	dir.mu.Lock()
	defer dir.mu.Unlock()
	if dir.lists != 1 {
		t.Fatalf("lists = %d, want 1", dir.lists)
	}
	if dir.lastOnlyActive {
		t.Fatal("hosts must list every stage, not only active ones")
	}
	if c.feed.Len() != 1 {
		t.Fatalf("feed len = %d", c.feed.Len())
	}
}

func TestHostDisconnectsSeatedParticipant(t *testing.T) {
	c, _, dir := newTestCoordinator(t)
	stage := domain.NewStage("s1", "arn", "me", domain.StageAudio, domain.ModeNone, "ACTIVE", "s1", nil)
	c.active = stage
	c.roster.MutateLocal(func(p *domain.Participant) {
		p.HostToken = &domain.HostToken{TokenData: domain.TokenData{Token: "t", ParticipantID: "p-local"}}
		p.ParticipantID = "p-local"
	})
	c.roster.ApplyJoined(core.ParticipantInfo{
		ParticipantID: "p-guest",
		Attributes:    map[string]string{domain.AttrUsername: "bob"},
	})
	stage.TakeSeat(3, "p-guest")

	c.DisconnectParticipant("p-guest")
	step(t, c) // the posted operation
	step(t, c) // first backend completion
	step(t, c) // second backend completion

	if stage.AudioSeats[3] != "" {
		t.Fatalf("seat 3 = %q, want vacant", stage.AudioSeats[3])
	}

	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.seatsPushed) != 1 {
		t.Fatalf("seat pushes = %d, want 1", len(dir.seatsPushed))
	}
	if dir.seatsPushed[0][3] != "" {
		t.Fatalf("pushed seat 3 = %q, want vacant", dir.seatsPushed[0][3])
	}
	if len(dir.disconnected) != 1 || dir.disconnected[0] != "bob/p-guest" {
		t.Fatalf("disconnected = %v", dir.disconnected)
	}
}

func TestSeatEventsDoNotTearFeedSnapshots(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.feed.Merge([]core.StageDetails{
		{CreatedAt: "t1", HostID: "alice", Type: domain.StageAudio, Mode: domain.ModeNone, Status: "ACTIVE"},
	})
	c.active = c.feed.FindByHost("alice")
	if c.active == nil {
		t.Fatal("stage not in feed")
	}

	const rounds = 200

	// Snapshot readers run beside the loop applying seat events; stage
	// writes must never tear a concurrent clone.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			for _, s := range c.feed.Snapshot() {
				if len(s.AudioSeats) != domain.AudioSeatCount {
					t.Errorf("snapshot carries %d seats, want %d", len(s.AudioSeats), domain.AudioSeatCount)
					return
				}
			}
		}
	}()

	for i := 0; i < rounds; i++ {
		seats := make([]string, domain.AudioSeatCount)
		seats[i%domain.AudioSeatCount] = "p-remote"
		c.handleChatEvent(core.ChatEvent{Kind: core.ChatSeatsChanged, Seats: seats})
	}
	<-done

	if got := c.active.AudioSeats[(rounds-1)%domain.AudioSeatCount]; got != "p-remote" {
		t.Fatalf("last seat event not applied, seat = %q", got)
	}
}

func TestSlotResolutionByUsername(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.hostUsername = "alice"
	c.roster.SetHostUsername("alice")
	c.votes.Start(time.Now())
	c.votes.Hold(map[string]int{"alice": 4, "bob": 2})

	// The second contender joins before the host; roles still resolve by
	// name, not by arrival order.
	c.handleMediaEvent(core.MediaEvent{
		Kind: core.MediaParticipantJoined,
		Participant: core.ParticipantInfo{
			ParticipantID: "p-b",
			Attributes:    map[string]string{domain.AttrUsername: "bob"},
		},
	})
	c.handleMediaEvent(core.MediaEvent{
		Kind: core.MediaParticipantJoined,
		Participant: core.ParticipantInfo{
			ParticipantID: "p-a",
			Attributes:    map[string]string{domain.AttrUsername: "alice"},
		},
	})

	if c.hostSlot == nil || c.hostSlot.username != "alice" {
		t.Fatalf("host slot = %+v", c.hostSlot)
	}
	if c.secondSlot == nil || c.secondSlot.username != "bob" {
		t.Fatalf("second slot = %+v", c.secondSlot)
	}
	host, second := c.votes.Counts()
	if host != 4 || second != 2 {
		t.Fatalf("held tallies = %d/%d, want 4/2", host, second)
	}

	// Losing the host's streams clears only the host slot.
	c.handleMediaEvent(core.MediaEvent{
		Kind:        core.MediaStreamsRemoved,
		Participant: core.ParticipantInfo{ParticipantID: "p-a"},
	})
	if c.hostSlot != nil {
		t.Fatal("host slot must clear")
	}
	if c.secondSlot == nil {
		t.Fatal("second slot must survive")
	}
}
