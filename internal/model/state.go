package model

import "time"

// Flow discriminates the multi-step conversation a user is currently in.
// Exactly one live state exists per owner; starting a new flow replaces
// the previous one.
type Flow string

const (
	FlowScheduleSetup  Flow = "schedule_setup"
	FlowPostManagement Flow = "post_management"
	FlowFooterInput    Flow = "footer_input"
	FlowChannelInput   Flow = "channel_input"
)

// Steps within flows. A step only ever advances on valid input; invalid
// input re-prompts and stays in place.
const (
	StepStart     = "start"
	StepTimeInput = "time_input"
	StepPostCount = "post_count"
	StepAddPost   = "add_post"
	StepAwaitText = "await_text"
)

// TempData is the transient bag carried across steps of one flow.
// Fields are flow-specific; unused ones stay empty.
type TempData struct {
	// schedule_setup
	Times []string `bson:"times,omitempty" json:"times,omitempty"`

	// channel_input
	Remove bool `bson:"remove,omitempty" json:"remove,omitempty"`
}

// ConvState is the durable per-owner conversation record. Keeping it in
// the store (not process memory) lets flows survive restarts and keeps
// concurrent users fully independent.
type ConvState struct {
	OwnerID int64    `bson:"_id" json:"owner_id"`
	Flow    Flow     `bson:"flow" json:"flow"`
	Step    string   `bson:"step" json:"step"`
	Temp    TempData `bson:"temp" json:"temp"`

	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
}
