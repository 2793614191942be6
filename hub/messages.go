package hub

// Wire message types. One JSON object per frame, discriminated by "type".
const (
	TypeConnectionAck    = "connection_ack"
	TypePositionSync     = "position_sync"
	TypeMappingUpdate    = "mapping_update"
	TypeParticipantJoin  = "participant_join"
	TypeParticipantLeave = "participant_leave"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeError            = "error"
)

// Message is the single envelope for every frame in both directions.
// Fields are pointers where zero is a meaningful value on the wire.
type Message struct {
	Type string `json:"type"`

	// connection_ack, participant_join, participant_leave
	ConnectionID     string `json:"connectionId,omitempty"`
	ParticipantCount int    `json:"participantCount,omitempty"`

	// position_sync
	CurrentTime *float64 `json:"currentTime,omitempty"`
	IsPlaying   *bool    `json:"isPlaying,omitempty"`
	SentenceID  string   `json:"sentenceId,omitempty"`

	// mapping_update
	StartTime   *float64 `json:"startTime,omitempty"`
	EndTime     *float64 `json:"endTime,omitempty"`
	MappingType string   `json:"mappingType,omitempty"`
	Deactivated bool     `json:"deactivated,omitempty"`

	// error
	Code   string `json:"code,omitempty"`
	Detail string `json:"message,omitempty"`
}
