package supervisor

import "strings"

// Preset is one of the closed set of named standing-orders presets.
type Preset string

const (
	PresetDoNothing  Preset = "DO_NOTHING"
	PresetStandard   Preset = "STANDARD"
	PresetPermissive Preset = "PERMISSIVE"
	PresetCautious   Preset = "CAUTIOUS"
	PresetResearch   Preset = "RESEARCH"
	PresetCoding     Preset = "CODING"
	PresetTesting    Preset = "TESTING"
	PresetReview     Preset = "REVIEW"
	PresetDeploy     Preset = "DEPLOY"
	PresetAutonomous Preset = "AUTONOMOUS"
	PresetMinimal    Preset = "MINIMAL"
)

var presetText = map[Preset]string{
	PresetDoNothing: "Do not intervene. Observe this agent only; never steer it, " +
		"never send it instructions, and never count it as a remediation candidate.",
	PresetStandard: "Keep this agent moving toward its assigned task. Answer routine " +
		"permission prompts consistent with its working directory and repository. " +
		"Escalate anything destructive or irreversible instead of approving it.",
	PresetPermissive: "This agent has broad latitude. Approve permission prompts " +
		"liberally, including most destructive filesystem and git operations within " +
		"its working directory, unless they touch another agent's working tree.",
	PresetCautious: "Approve only clearly safe, read-only, or easily reversible " +
		"actions. Decline anything involving deletion, force-push, credential " +
		"access, or network egress; ask the agent to propose a safer alternative.",
	PresetResearch: "This agent is gathering information, not changing state. " +
		"Approve read, search, and analysis actions freely. Decline any prompt " +
		"that would write files or run mutating commands.",
	PresetCoding: "This agent is implementing a feature or fix. Approve edits, " +
		"test runs, and local builds. Decline pushes, deploys, or destructive " +
		"git history rewrites without explicit standing orders to do so.",
	PresetTesting: "This agent is writing or running tests. Approve test " +
		"execution, fixture creation, and coverage tooling. Decline changes to " +
		"production configuration or non-test source files.",
	PresetReview: "This agent is reviewing code, not changing it. Approve reads " +
		"and comment/annotation actions. Decline any edit to the reviewed files.",
	PresetDeploy: "This agent is performing a deployment. Approve build, package, " +
		"and publish steps that match its recorded repository and branch. Decline " +
		"anything outside the deployment's declared scope.",
	PresetAutonomous: "This agent operates with minimal supervision. Approve " +
		"virtually all prompts unless they are clearly destructive to systems " +
		"outside its own working directory.",
	PresetMinimal: "Intervene only when the agent is fully blocked with no path " +
		"forward. Otherwise let it proceed or stall on its own.",
}

// allPresets is the closed set's canonical ordering, used by Resolve for
// case-insensitive lookup.
var allPresets = []Preset{
	PresetDoNothing, PresetStandard, PresetPermissive, PresetCautious,
	PresetResearch, PresetCoding, PresetTesting, PresetReview,
	PresetDeploy, PresetAutonomous, PresetMinimal,
}

// Resolve maps standing-orders input to (instructions, preset). If the
// uppercased input matches a preset name, its instruction text and name
// are returned; otherwise the input is returned unchanged with preset
// equal to the empty string.
func Resolve(input string) (instructions string, preset Preset) {
	upper := strings.ToUpper(strings.TrimSpace(input))
	for _, p := range allPresets {
		if string(p) == upper {
			return presetText[p], p
		}
	}
	return input, ""
}

// IsDoNothing reports whether standingOrders begins with the
// case-insensitive literal DO_NOTHING.
func IsDoNothing(standingOrders string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(standingOrders)), string(PresetDoNothing))
}
