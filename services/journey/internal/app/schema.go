package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

// KeywordRule maps a literal substring of a user message to a checkpoint
// value. Rules are ordered; the first match wins.
type KeywordRule struct {
	Keyword string
	Value   string
}

// CheckpointDef describes one piece of information a milestone collects:
// how to ask for it, how to read and write it on a journey, and how to
// normalize raw extracted text into a canonical value.
type CheckpointDef struct {
	Name     string
	Question string
	// Guidance is appended to the extraction prompt while this checkpoint is
	// the one being collected.
	Guidance string
	// Fallback drives the keyword heuristic used when the extraction model is
	// unreachable.
	Fallback []KeywordRule

	Get       func(domain.Journey) string
	Set       func(*domain.Journey, string)
	Normalize func(string) string
}

// MilestoneDef groups the checkpoints that must all be set before the
// milestone counts as satisfied. Completed reads the stamped flag on the
// journey; MarkCompleted stamps it together with the completion time.
type MilestoneDef struct {
	Index       int
	Title       string
	Checkpoints []CheckpointDef

	Completed     func(domain.Journey) bool
	MarkCompleted func(*domain.Journey, time.Time)
}

// Satisfied reports whether every checkpoint of the milestone is set.
func (m MilestoneDef) Satisfied(j domain.Journey) bool {
	for _, cp := range m.Checkpoints {
		if cp.Get(j) == "" {
			return false
		}
	}
	return true
}

// NextCheckpoint returns the first unset checkpoint of the milestone.
func (m MilestoneDef) NextCheckpoint(j domain.Journey) (CheckpointDef, bool) {
	for _, cp := range m.Checkpoints {
		if cp.Get(j) == "" {
			return cp, true
		}
	}
	return CheckpointDef{}, false
}

// Schema is the ordered milestone sequence a journey walks through. All
// progression logic is driven off the schema rather than hard-coded
// milestone numbers.
type Schema struct {
	Milestones []MilestoneDef
}

func (s Schema) Milestone(index int) (MilestoneDef, bool) {
	for _, m := range s.Milestones {
		if m.Index == index {
			return m, true
		}
	}
	return MilestoneDef{}, false
}

func (s Schema) Checkpoint(name string) (CheckpointDef, bool) {
	for _, m := range s.Milestones {
		for _, cp := range m.Checkpoints {
			if cp.Name == name {
				return cp, true
			}
		}
	}
	return CheckpointDef{}, false
}

// CheckpointNames lists every checkpoint in milestone order. The list is the
// enum offered to the extraction model.
func (s Schema) CheckpointNames() []string {
	var names []string
	for _, m := range s.Milestones {
		for _, cp := range m.Checkpoints {
			names = append(names, cp.Name)
		}
	}
	return names
}

// FinalMilestone returns the index of the last milestone.
func (s Schema) FinalMilestone() int {
	return s.Milestones[len(s.Milestones)-1].Index
}

// DefaultSchema returns the built-in renovation journey: three milestones of
// two checkpoints each.
func DefaultSchema() Schema {
	return Schema{Milestones: []MilestoneDef{
		{
			Index:     1,
			Title:     "Project Basics",
			Completed: func(j domain.Journey) bool { return j.Milestone1Completed },
			MarkCompleted: func(j *domain.Journey, at time.Time) {
				j.Milestone1Completed = true
				j.Milestone1CompletedAt = &at
			},
			Checkpoints: []CheckpointDef{
				{
					Name:      "room",
					Question:  "Which room do you want to renovate?",
					Guidance:  roomGuidance,
					Get:       func(j domain.Journey) string { return j.Room },
					Set:       func(j *domain.Journey, v string) { j.Room = v },
					Normalize: normalizeRoom,
					Fallback: []KeywordRule{
						{"kitchen", "kitchen"},
						{"bathroom", "bathroom"},
						{"bedroom", "bedroom"},
						{"living room", "living room"},
						{"basement", "basement"},
					},
				},
				{
					Name:      "renovation_purpose",
					Question:  "What is the main purpose of your renovation?",
					Guidance:  purposeGuidance,
					Get:       func(j domain.Journey) string { return j.RenovationPurpose },
					Set:       func(j *domain.Journey, v string) { j.RenovationPurpose = v },
					Normalize: normalizePurpose,
					Fallback: []KeywordRule{
						{"aesthetic", "aesthetic"},
						{"functional", "functional"},
						{"repair", "repair"},
						{"expand", "expand space"},
						{"modern", "modernize"},
					},
				},
			},
		},
		{
			Index:     2,
			Title:     "Budget and Timeline",
			Completed: func(j domain.Journey) bool { return j.Milestone2Completed },
			MarkCompleted: func(j *domain.Journey, at time.Time) {
				j.Milestone2Completed = true
				j.Milestone2CompletedAt = &at
			},
			Checkpoints: []CheckpointDef{
				{
					Name:      "budget_range",
					Question:  "What kind of budget do you have in mind for this renovation?",
					Guidance:  budgetGuidance,
					Get:       func(j domain.Journey) string { return j.BudgetRange },
					Set:       func(j *domain.Journey, v string) { j.BudgetRange = v },
					Normalize: normalizeBudget,
					Fallback: []KeywordRule{
						{"cheap", "low"},
						{"affordable", "low"},
						{"reasonable", "medium"},
						{"mid", "medium"},
						{"expensive", "high"},
						{"luxury", "high"},
					},
				},
				{
					Name:      "timeline",
					Question:  "How quickly are you hoping to complete this renovation?",
					Guidance:  timelineGuidance,
					Get:       func(j domain.Journey) string { return j.Timeline },
					Set:       func(j *domain.Journey, v string) { j.Timeline = v },
					Normalize: normalizeTimeline,
					Fallback: []KeywordRule{
						{"quick", "weeks"},
						{"fast", "weeks"},
						{"soon", "weeks"},
						{"month", "months"},
						{"long", "months"},
					},
				},
			},
		},
		{
			Index:     3,
			Title:     "Style Preferences and Plan",
			Completed: func(j domain.Journey) bool { return j.Milestone3Completed },
			MarkCompleted: func(j *domain.Journey, at time.Time) {
				j.Milestone3Completed = true
				j.Milestone3CompletedAt = &at
			},
			Checkpoints: []CheckpointDef{
				{
					Name:      "style_preference",
					Question:  "What style are you going for in this renovation?",
					Guidance:  styleGuidance,
					Get:       func(j domain.Journey) string { return j.StylePreference },
					Set:       func(j *domain.Journey, v string) { j.StylePreference = v },
					Normalize: normalizeStyle,
					Fallback: []KeywordRule{
						{"modern", "modern"},
						{"traditional", "traditional"},
						{"rustic", "rustic"},
						{"minimalist", "minimalist"},
						{"contemporary", "contemporary"},
					},
				},
				{
					Name:      "priority_feature",
					Question:  "What's the most important feature you want in your renovation?",
					Guidance:  featureGuidance,
					Get:       func(j domain.Journey) string { return j.PriorityFeature },
					Set:       func(j *domain.Journey, v string) { j.PriorityFeature = v },
					Normalize: normalizeFeature,
					Fallback: []KeywordRule{
						{"storage", "storage"},
						{"light", "lighting"},
						{"space", "space"},
						{"energy", "energy efficiency"},
						{"smart", "smart features"},
					},
				},
			},
		},
	}}
}

const (
	roomGuidance = `ROOM GUIDELINES:
- Look for mentions of specific rooms (kitchen, bathroom, bedroom, etc.)
- Extract just the room name (e.g., "kitchen", "bathroom", "master bedroom")
- Examples: "I want to renovate my kitchen", "My bathroom needs work", "The living room is outdated"
- Valid values include: kitchen, bathroom, bedroom, living room, dining room, basement, attic, office, etc.`

	purposeGuidance = `RENOVATION PURPOSE GUIDELINES:
- Look for why the user wants to renovate
- Categorize as one of: aesthetic, functional, repair, modernize, expand space
- Examples: "I want it to look better" (aesthetic), "I need more counter space" (functional), "The pipes are leaking" (repair)
- The purpose should be a single word or short phrase from the standard categories`

	budgetGuidance = `BUDGET RANGE GUIDELINES:
- Look for mentions of budget or cost expectations
- Categorize as: low, medium, or high
- Examples: "I want to keep costs down" (low), "I have a reasonable budget" (medium), "Money is no object" (high)
- The budget should be one of the three standard categories: low, medium, high`

	timelineGuidance = `TIMELINE GUIDELINES:
- Look for mentions of timing or scheduling expectations
- Categorize as: weeks or months
- Examples: "I need this done ASAP" (weeks), "I'm not in a rush" (months), "Before summer" (months)
- The timeline should be one of the two standard categories: weeks, months`

	styleGuidance = `STYLE PREFERENCE GUIDELINES:
- Look for mentions of design style or aesthetic preferences
- Categorize as: modern, traditional, rustic, minimalist, contemporary
- Examples: "I like clean lines" (modern), "I prefer classic designs" (traditional), "I want a cabin feel" (rustic)
- The style should be one of the standard categories mentioned above`

	featureGuidance = `PRIORITY FEATURE GUIDELINES:
- Look for mentions of what features are most important to the user
- Categorize as: storage, lighting, space, energy efficiency, smart features
- Examples: "I need more cabinet space" (storage), "The room is too dark" (lighting), "I want eco-friendly appliances" (energy efficiency)
- The priority feature should be one of the standard categories mentioned above`
)

func containsAny(value string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(value, sub) {
			return true
		}
	}
	return false
}

// knownRooms is ordered; the first substring match wins, so "master bedroom"
// maps to "bedroom".
var knownRooms = []string{
	"kitchen", "bathroom", "bedroom", "living room", "dining room",
	"basement", "attic", "office", "master bedroom", "guest bedroom",
	"den", "family room", "laundry room", "utility room", "garage",
}

func normalizeRoom(value string) string {
	for _, room := range knownRooms {
		if strings.Contains(value, room) {
			return room
		}
	}
	// custom rooms pass through
	return value
}

func normalizePurpose(value string) string {
	for _, purpose := range []string{"aesthetic", "functional", "repair", "modernize", "expand space"} {
		if strings.Contains(value, purpose) {
			return purpose
		}
	}
	switch {
	case containsAny(value, "look", "appearanc", "beaut"):
		return "aesthetic"
	case containsAny(value, "use", "practi", "utili"):
		return "functional"
	case containsAny(value, "fix", "broke", "damage"):
		return "repair"
	case containsAny(value, "updat", "renew", "fresh"):
		return "modernize"
	case containsAny(value, "more room", "bigger", "larger"):
		return "expand space"
	}
	return value
}

func normalizeBudget(value string) string {
	switch {
	case containsAny(value, "low", "cheap", "afford", "budget", "inexpens"):
		return "low"
	case containsAny(value, "medium", "moderate", "reasonable", "mid"):
		return "medium"
	case containsAny(value, "high", "expens", "premium", "luxury"):
		return "high"
	}
	return "medium"
}

func normalizeTimeline(value string) string {
	switch {
	case containsAny(value, "quick", "fast", "soon", "week", "day", "asap"):
		return "weeks"
	case containsAny(value, "slow", "month", "time", "no rush", "not urgent"):
		return "months"
	}
	return "months"
}

func normalizeStyle(value string) string {
	switch {
	case containsAny(value, "modern", "contemporary", "sleek", "clean"):
		return "modern"
	case containsAny(value, "tradition", "classic", "conventional"):
		return "traditional"
	case containsAny(value, "rustic", "country", "farmhouse", "cabin", "wood"):
		return "rustic"
	case containsAny(value, "minimal", "simple", "clean"):
		return "minimalist"
	case containsAny(value, "contemp", "current"):
		return "contemporary"
	}
	return "modern"
}

func normalizeFeature(value string) string {
	switch {
	case containsAny(value, "storage", "cabinet", "space", "organization"):
		return "storage"
	case containsAny(value, "light", "bright", "dark", "window"):
		return "lighting"
	case containsAny(value, "room", "area", "open"):
		return "space"
	case containsAny(value, "energy", "efficient", "eco", "green"):
		return "energy efficiency"
	case containsAny(value, "smart", "tech", "automation", "device"):
		return "smart features"
	}
	return "space"
}

// normalizeValue lowercases and trims raw extracted text, then applies the
// checkpoint's own normalizer.
func normalizeValue(cp CheckpointDef, raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if cp.Normalize != nil {
		return cp.Normalize(value)
	}
	return value
}

// schemaFile is the YAML shape for overriding conversational text. Structure
// (milestone indexes, checkpoint names, ordering, normalization) stays fixed
// in code; only titles, questions and guidance can be replaced.
type schemaFile struct {
	Milestones []struct {
		Index       int    `yaml:"index"`
		Title       string `yaml:"title"`
		Checkpoints []struct {
			Name     string `yaml:"name"`
			Question string `yaml:"question"`
			Guidance string `yaml:"guidance"`
		} `yaml:"checkpoints"`
	} `yaml:"milestones"`
}

// LoadSchema returns the built-in schema, overlaying text from the YAML file
// at path when one is given.
func LoadSchema(path string) (Schema, error) {
	schema := DefaultSchema()
	if path == "" {
		return schema, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Schema{}, fmt.Errorf("parse schema file: %w", err)
	}
	for _, fm := range file.Milestones {
		found := false
		for mi := range schema.Milestones {
			m := &schema.Milestones[mi]
			if m.Index != fm.Index {
				continue
			}
			found = true
			if fm.Title != "" {
				m.Title = fm.Title
			}
			for _, fc := range fm.Checkpoints {
				matched := false
				for ci := range m.Checkpoints {
					if m.Checkpoints[ci].Name != fc.Name {
						continue
					}
					matched = true
					if fc.Question != "" {
						m.Checkpoints[ci].Question = fc.Question
					}
					if fc.Guidance != "" {
						m.Checkpoints[ci].Guidance = fc.Guidance
					}
				}
				if !matched {
					return Schema{}, fmt.Errorf("schema file: unknown checkpoint %q in milestone %d", fc.Name, fm.Index)
				}
			}
		}
		if !found {
			return Schema{}, fmt.Errorf("schema file: unknown milestone index %d", fm.Index)
		}
	}
	return schema, nil
}
