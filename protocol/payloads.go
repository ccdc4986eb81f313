package protocol

// Client -> Server

type JoinRoom struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type PlayerAction struct {
	Action string `json:"action"`
}

type RegisterBot struct {
	Name string `json:"name"`
}

type BotAction struct {
	MatchID string `json:"matchId,omitempty"`
	Action  string `json:"action"`
}

// Server -> Client

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack answers a request that carried a RequestID.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type JoinAck struct {
	Ack
	PlayerID string     `json:"playerId,omitempty"`
	RoomID   string     `json:"roomId,omitempty"`
	State    *RoomState `json:"state,omitempty"`
}

type RegisterAck struct {
	Ack
	BotID  string `json:"botId,omitempty"`
	Rating int    `json:"rating,omitempty"`
	Stats  *Stats `json:"stats,omitempty"`
}

type Registered struct {
	BotID  string `json:"botId"`
	Rating int    `json:"rating"`
	Stats  Stats  `json:"stats"`
}

type Stats struct {
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	Rating  int     `json:"rating"`
	WinRate float64 `json:"winRate"`
}

// Event is a log line. Timestamp is in Unix milliseconds.
type Event struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type RoomPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Chips     int    `json:"chips"`
	Cards     []int  `json:"cards"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
	IsTurn    bool   `json:"isTurn"`
}

// RoomState is broadcast to every room member after each change.
type RoomState struct {
	RoomID       string       `json:"roomId"`
	State        string       `json:"state"`
	Players      []RoomPlayer `json:"players"`
	Pot          int          `json:"pot"`
	CurrentCard  *int         `json:"currentCard"`
	DeckCount    int          `json:"deckCount"`
	RemovedCount int          `json:"removedCount"`
	HostID       *string      `json:"hostId"`
	WinnerIDs    []string     `json:"winnerIds"`
	Events       []Event      `json:"events"`
}

type MatchPlayer struct {
	BotID     string `json:"botId"`
	Name      string `json:"name"`
	Chips     int    `json:"chips"`
	Cards     []int  `json:"cards"`
	IsTurn    bool   `json:"isTurn"`
	Connected bool   `json:"connected"`
}

// MatchState is the public view sent with match_started and match_update.
type MatchState struct {
	MatchID      string        `json:"matchId"`
	CurrentCard  *int          `json:"currentCard"`
	Pot          int           `json:"pot"`
	DeckCount    int           `json:"deckCount"`
	RemovedCount int           `json:"removedCount"`
	Players      []MatchPlayer `json:"players"`
	History      []Event       `json:"history"`
}

type Self struct {
	Name  string `json:"name"`
	Chips int    `json:"chips"`
	Cards []int  `json:"cards"`
}

// BotView is a single bot's decision context, sent with turn and
// match_resumed.
type BotView struct {
	MatchID      string        `json:"matchId"`
	You          Self          `json:"you"`
	CurrentCard  *int          `json:"currentCard"`
	Pot          int           `json:"pot"`
	DeckCount    int           `json:"deckCount"`
	RemovedCount int           `json:"removedCount"`
	Players      []MatchPlayer `json:"players"`
	History      []Event       `json:"history"`
	TimeoutMs    int64         `json:"timeoutMs"`
}

type MatchResumed struct {
	MatchID string  `json:"matchId"`
	State   BotView `json:"state"`
}

type Standing struct {
	BotID      string `json:"botId"`
	Name       string `json:"name"`
	TotalScore int    `json:"totalScore"`
	Cards      []int  `json:"cards"`
	Chips      int    `json:"chips"`
}

type MatchEnded struct {
	MatchID   string     `json:"matchId"`
	Standings []Standing `json:"standings"`
	Winners   []string   `json:"winners"`
}

// LeaderboardEntry is one row of GET /api/bots/ratings. LastSeen is in Unix
// milliseconds.
type LeaderboardEntry struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rating   int     `json:"rating"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Draws    int     `json:"draws"`
	WinRate  float64 `json:"winRate"`
	LastSeen int64   `json:"lastSeen"`
}

// Card returns a pointer for a present card and nil otherwise.
func Card(c int, ok bool) *int {
	if !ok {
		return nil
	}
	return &c
}
