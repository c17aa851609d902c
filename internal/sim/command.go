package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandCorrect CommandType = "Correct"
)

// CorrectCommand names the object a peer asked to have righted. Target is
// the wire form of the identifier and is decoded on the tick.
type CorrectCommand struct {
	Target string `json:"target"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64          `json:"originTick"`
	ActorID    uint64          `json:"actorId"`
	Type       CommandType     `json:"type"`
	IssuedAt   time.Time       `json:"issuedAt"`
	Correct    *CorrectCommand `json:"correct,omitempty"`
}
