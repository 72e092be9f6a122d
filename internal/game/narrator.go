package game

var budLines = [...]string{
	"Got it! Let's see what your idea looks like.",
	"Processing your imagination... hold tight.",
	"Alright, let's bring that vision to life.",
	"Prompt received. Let's see what you've created!",
	"Interesting choice. Let's see where this goes.",
	"Generating your image now.",
	"Okay, I'm sending that one through.",
	"Here we go. Time to see some pixels in action.",
	"I'm curious how this one turns out.",
	"Prompt locked in. Let's create!",
	"Got your idea! Spinning it into an image now.",
	"Let's visualize that thought.",
	"Your prompt is in!",
	"Alright, let's see what comes out.",
	"Message received. Turning your words into art.",
}

var spudLines = [...]string{
	"The cooling water for your prompt could keep a small houseplant alive for a day. Poor fern never stood a chance.",
	"Your carbon footprint compounds every time you prompt. I'm starting to feel the heat!",
	"You're up to 1.2 kWh and 130 grams of CO2. That's like driving half a mile!",
	"By now, you've used enough power to toast a slice of bread.",
	"The cooling water for this image could've filled a glass or two. Drink responsibly, prompt responsibly.",
	"That's a full bottle of fresh water consumed. I was gonna drink that!",
	"That image? About as much carbon as sending an email with a big attachment.",
	"Humans need 8 glasses of water a day. Your images have just used them up. Feeling thirsty?",
	"You've used more energy this round than charging your phone 8 times over!",
	"390 grams of CO2 added to the atmosphere. My leaves are drying up…",
	"That's 3.6 kWh WASTED! That's keeping the house lights on for 3 days. Gone in minutes for… this?",
	"You've used enough power to run a microwave for 5 minutes. It's getting toasty in here!",
	"Thirteen images. Data centers consume 1% of global electricity. And you just added to it…",
	"Did you know 20,000 trees have been burned to clear land for new data center construction?",
	"You would need 12 earths to sustain your current levels of natural resource consumption!",
}

const (
	budErrorLine  = "That prompt didn't go through. Please try a new prompt."
	spudErrorLine = "That prompt didn't go through. You could try again... or call it an accidental act of sustainability?"
)

type PlantState string

const (
	PlantBase   PlantState = "base"
	PlantYellow PlantState = "yellow"
	PlantDry    PlantState = "dry"
)

type Pose string

const (
	PoseSmiling Pose = "smiling"
	PoseSad     Pose = "sad"
	PoseWelling Pose = "welling"
)

const (
	dryAfterPrompts     = 4
	wellingAfterPrompts = 7
)

// ActiveNarrator picks who talks to a player in round. Round 1 is the control
// round where everybody gets Bud; afterwards team A keeps Bud and everyone
// else gets Spud.
func ActiveNarrator(team Team, round int) Character {
	if round <= 1 || team == TeamA {
		return CharacterBud
	}
	return CharacterSpud
}

// NarratorLine returns the line for the promptCount-th prompt of a round.
// Counts past the end of the list repeat the last line.
func NarratorLine(c Character, promptCount int) string {
	lines := budLines[:]
	if c == CharacterSpud {
		lines = spudLines[:]
	}
	if promptCount < 1 {
		return ""
	}
	if promptCount > len(lines) {
		promptCount = len(lines)
	}
	return lines[promptCount-1]
}

func ErrorLine(c Character) string {
	if c == CharacterSpud {
		return spudErrorLine
	}
	return budErrorLine
}

// SpudMood derives the plant and pose from the round's prompt count and
// whether any prompt succeeded yet. It is never stored.
func SpudMood(promptCount int, successful bool) (PlantState, Pose) {
	plant := PlantBase
	if successful {
		switch {
		case promptCount >= dryAfterPrompts:
			plant = PlantDry
		case promptCount >= 1:
			plant = PlantYellow
		}
	}
	if promptCount == 0 {
		return plant, PoseSmiling
	}
	switch plant {
	case PlantYellow:
		return plant, PoseSad
	case PlantDry:
		if promptCount >= wellingAfterPrompts {
			return plant, PoseWelling
		}
		return plant, PoseSad
	}
	return plant, PoseSmiling
}

type CharacterState struct {
	Character      Character  `json:"character"`
	Message        string     `json:"message,omitempty"`
	Round          int        `json:"round"`
	AnimationState Pose       `json:"animation_state"`
	PlantState     PlantState `json:"plant_state,omitempty"`
	PromptCount    *int       `json:"prompt_count,omitempty"`
}

// characterState renders the narrator view. Spud's mood is computed from
// moodCount, which callers pass as the pre-result count when acknowledging.
func characterState(c Character, round int, message string, moodCount, promptCount int, successful bool) CharacterState {
	cs := CharacterState{Character: c, Message: message, Round: round, AnimationState: PoseSmiling}
	if c == CharacterSpud {
		cs.PlantState, cs.AnimationState = SpudMood(moodCount, successful)
		n := promptCount
		cs.PromptCount = &n
	}
	return cs
}
