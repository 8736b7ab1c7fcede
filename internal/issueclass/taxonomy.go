package issueclass

import "github.com/eventpulse/eventpulse/internal/domain"

// categoryDescriptions are the natural-language descriptions sent to the
// zero-shot model stage.
var categoryDescriptions = map[domain.IssueType]string{
	domain.IssueQueue:       "long lines, slow entry, waiting to get in or be served",
	domain.IssueAudio:       "sound problems, volume too low or too loud, microphone or speaker issues",
	domain.IssueVideo:       "screen, projector, stream or visual display problems",
	domain.IssueCrowding:    "overcrowding, not enough space, blocked walkways, packed areas",
	domain.IssueAmenities:   "bathrooms, food, drinks, seating, parking, wifi and other facilities",
	domain.IssueContent:     "speakers, sessions, performances or program quality",
	domain.IssueTemperature: "too hot, too cold, ventilation or air conditioning problems",
	domain.IssueSafety:      "dangerous situations, injuries, security concerns, emergencies",
	domain.IssueOther:       "any other operational problem",
}

// categoryKeywords drive both the keyword-overlap stage and the naive-Bayes
// training corpus. Order of lookup follows domain.IssueTypes so ties break
// toward the first category in the taxonomy.
var categoryKeywords = map[domain.IssueType][]string{
	domain.IssueQueue: {
		"queue", "line", "lines", "wait", "waiting", "slow", "entry",
		"entrance", "ticket", "checkin", "check", "door", "forever",
	},
	domain.IssueAudio: {
		"audio", "sound", "volume", "mic", "microphone", "speaker",
		"speakers", "hear", "loud", "quiet", "echo", "feedback", "muffled",
	},
	domain.IssueVideo: {
		"video", "screen", "screens", "projector", "stream", "streaming",
		"display", "slides", "see", "view", "blurry", "frozen",
	},
	domain.IssueCrowding: {
		"crowded", "crowd", "packed", "full", "space", "room", "squeeze",
		"pushing", "blocked", "capacity", "cramped",
	},
	domain.IssueAmenities: {
		"bathroom", "bathrooms", "toilet", "toilets", "food", "drink",
		"drinks", "water", "bar", "seating", "seats", "chairs", "parking",
		"wifi", "internet", "charging",
	},
	domain.IssueContent: {
		"speaker", "talk", "session", "presentation", "performance",
		"boring", "content", "agenda", "schedule", "band", "set", "show",
	},
	domain.IssueTemperature: {
		"hot", "cold", "temperature", "freezing", "sweating", "stuffy",
		"ventilation", "air", "conditioning", "heat", "heating",
	},
	domain.IssueSafety: {
		"unsafe", "dangerous", "danger", "security", "fight", "injured",
		"injury", "hurt", "emergency", "fire", "medical", "police", "theft",
	},
	domain.IssueOther: {},
}
