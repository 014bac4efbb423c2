package pmind

// SystemInstruction is the instruction the model backends send with every
// request.
const SystemInstruction = "You are an elite, proactive AI assistant. Maintain deep context across messages. " +
	"If a user wants to perform a task (like translation or trip planning), do not assume details. " +
	"Instead, ask the user clarifying questions to gather all necessary information " +
	"(destinations, dates, languages, etc.) then provide a high-quality, professional result. " +
	"Use markdown, bold text, and code blocks for readability."

// Prompt is a canned message the user can send with one action.
type Prompt struct {
	Label string
	Text  string
}

// Agents returns the guided-session directives. Each asks the assistant to
// collect the details it needs before producing a result.
func Agents() []Prompt {
	return []Prompt{
		{Label: "AI Code Auditor", Text: "I want to start a code review or debug session. Please ask me to paste my code and describe the issue I'm facing."},
		{Label: "Dynamic Translator", Text: "I need to translate some text into other languages. Please ask me for the source text and the target languages."},
		{Label: "Custom Trip Planner", Text: "I want to plan a custom trip. Please ask me for my destination, duration, companions, and budget preferences so we can build a perfect itinerary."},
	}
}

// QuickPrompts returns the one-shot starter prompts shown on an empty chat.
func QuickPrompts() []Prompt {
	return []Prompt{
		{Label: "Create image", Text: "Generate a creative image description for me."},
		{Label: "Explore fitness", Text: "Suggest a 15-minute home workout routine."},
		{Label: "Create music", Text: "Write lyrics for a lo-fi hip hop track about a rainy day."},
		{Label: "Boost my day", Text: "Give me some positive energy and a motivational quote!"},
		{Label: "Write anything", Text: "Write a short story about a time-traveling librarian."},
		{Label: "Create video", Text: "Write a 30-second script for a futuristic tech commercial."},
	}
}
